package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kidvoice-labs/safegate/internal/alert"
	"github.com/kidvoice-labs/safegate/internal/coach"
	"github.com/kidvoice-labs/safegate/internal/detect"
	"github.com/kidvoice-labs/safegate/internal/engine"
	"github.com/kidvoice-labs/safegate/internal/genai"
	"github.com/kidvoice-labs/safegate/internal/models"
	"github.com/kidvoice-labs/safegate/internal/safety"
	"github.com/kidvoice-labs/safegate/internal/store"
)

// consecutiveErrorsOverlay is the error-streak length at which the overlay
// signal set starts carrying CONSECUTIVE_ERRORS.
const consecutiveErrorsOverlay = 3

// Dependencies holds the collaborators injected into a session.
type Dependencies struct {
	Detector *detect.Detector
	// Generator may be nil, in which case every event resolves to fallback text.
	Generator genai.ClientInterface
	// Notifier may be nil, disabling caregiver alerts.
	Notifier alert.Notifier
	// Store may be nil, disabling the session event log.
	Store store.Store
	// PlannedDuration is the total planned session length for scheduled breaks.
	PlannedDuration time.Duration
	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
	// Sink receives UI packages produced outside a caller's request, i.e.
	// those triggered by the inactivity timer. May be nil.
	Sink func(models.UIPackage)
}

// Session is one child's play-through: one state engine, one orchestrator,
// one inactivity timer. Events are processed strictly sequentially; the
// session mutex is held for the whole pipeline including the generator call,
// so a new event queues behind a pending generation.
type Session struct {
	id   string
	deps Dependencies
	now  func() time.Time

	mu     sync.Mutex
	engine *engine.Engine
	timer  *inactivityTimer

	card               *models.TaskContext
	attempt            int
	lastResponse       string
	secondLastResponse string
	lastConfig         models.SessionConfig
	choicePending      bool
	pendingBreak       bool
	alerted            bool
	closed             bool
}

// NewSession creates a session with a fresh state estimate and the GREEN
// session configuration.
func NewSession(id string, deps Dependencies) *Session {
	if deps.Detector == nil {
		deps.Detector = detect.NewDetector()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	slog.Debug("Session.NewSession: creating session", "sessionID", id,
		"hasGenerator", deps.Generator != nil, "hasNotifier", deps.Notifier != nil)
	return &Session{
		id:         id,
		deps:       deps,
		now:        now,
		engine:     engine.New(now),
		timer:      &inactivityTimer{},
		lastConfig: safety.PlanSession(models.LevelGreen),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// ProcessEvent runs the full pipeline for one event: detect signals, update
// state, assess the level, select interventions, plan the session config,
// then produce either validated generated speech or deterministic fallback
// text. Returns the UI package for this event.
func (s *Session) ProcessEvent(ctx context.Context, event models.Event) (models.UIPackage, error) {
	if err := event.Validate(); err != nil {
		return models.UIPackage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processEvent(ctx, event)
}

// processEvent is the pipeline body; the caller holds s.mu.
func (s *Session) processEvent(ctx context.Context, event models.Event) (models.UIPackage, error) {
	if s.closed {
		return models.UIPackage{}, models.ErrSessionClosed
	}
	if s.card == nil {
		return models.UIPackage{}, models.ErrNoActiveCard
	}

	// A received response always cancels the pending timeout before anything
	// else; whether it restarts is decided once the new level is known.
	s.timer.Stop()

	event = s.withResponseHistory(event)

	detection, err := s.deps.Detector.Detect(ctx, event)
	if err != nil {
		return models.UIPackage{}, fmt.Errorf("signal detection failed: %w", err)
	}
	if detection.ClassifierErr != nil {
		slog.Warn("Session.processEvent: text classifier failed, keyword cues used",
			"sessionID", s.id, "error", detection.ClassifierErr)
	}
	signals := detection.Signals

	state := s.engine.ProcessEvent(event, signals)
	if err := state.CheckBounds(); err != nil {
		// Programmer error in the update rules; surface loudly.
		return models.UIPackage{}, err
	}
	if state.ConsecutiveErrors >= consecutiveErrorsOverlay {
		signals = append(signals, models.SignalConsecutiveErrors)
	}

	level := safety.Assess(state, signals)
	interventions := safety.SelectInterventions(level, state, signals)
	sessionConfig := safety.PlanSession(level)
	constraints := coach.BuildConstraints(event, level)

	if event.Type == models.EventResponseReceived {
		s.attempt++
		s.secondLastResponse = s.lastResponse
		s.lastResponse = event.Response
	}

	speech, choiceMessage, usedFallback := s.produceSpeech(ctx, event, level, constraints, interventions)

	s.lastConfig = sessionConfig
	s.choicePending = constraints.MustOfferChoices ||
		(event.Type == models.EventInactivityFired && level >= models.LevelYellow)

	if !s.choicePending && s.card != nil {
		s.timer.Start(sessionConfig.InactivityTimeout, s.onInactivity)
	}

	if level == models.LevelRed && !s.alerted {
		s.alerted = true
		s.notifyCaregiver(state)
	}

	s.record(event, level, signals, speech, usedFallback)

	slog.Debug("Session.ProcessEvent: processed", "sessionID", s.id,
		"eventType", event.Type, "level", level.String(),
		"signals", signals, "fallback", usedFallback)

	return models.UIPackage{
		Overlay: models.Overlay{
			Signals:     signals,
			State:       state,
			SafetyLevel: level,
		},
		Interventions:  interventions,
		SessionConfig:  sessionConfig,
		Speech:         models.Speech{Text: speech},
		ChoiceMessage:  choiceMessage,
		BreakSuggested: safety.ShouldTriggerScheduledBreak(state, s.deps.PlannedDuration),
	}, nil
}

// SetCurrentCard installs the card the child is about to answer and starts
// the inactivity timer for it.
func (s *Session) SetCurrentCard(card models.TaskContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrSessionClosed
	}

	s.card = &card
	s.attempt = 0
	s.lastResponse = ""
	s.secondLastResponse = ""
	s.choicePending = false
	s.timer.Start(s.lastConfig.InactivityTimeout, s.onInactivity)
	slog.Debug("Session.SetCurrentCard: card set", "sessionID", s.id, "category", card.Category)
	return nil
}

// HandleChoiceSelection maps a chosen intervention to timer behavior: retry
// restarts the timer; skip, break, breathing, and call-grownup stop it.
// Break-class choices additionally mark the break so ResumeSession applies
// the regulation relief when play resumes.
func (s *Session) HandleChoiceSelection(action models.Intervention) error {
	if !models.IsValidIntervention(action) {
		return fmt.Errorf("%w: %q", models.ErrUnknownIntervention, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrSessionClosed
	}

	s.choicePending = false
	switch action {
	case models.InterventionRetryCard:
		if s.card != nil {
			s.timer.Start(s.lastConfig.InactivityTimeout, s.onInactivity)
		}
	case models.InterventionStartBreak, models.InterventionBubbleBreathing:
		s.pendingBreak = true
		s.timer.Stop()
	case models.InterventionSkipCard, models.InterventionCallGrownup:
		s.timer.Stop()
	}
	slog.Debug("Session.HandleChoiceSelection: choice applied", "sessionID", s.id, "action", action)
	return nil
}

// ResumeSession restarts play after a break or regulation activity ends:
// the break-taken transition is applied if one was pending, and the timer
// restarts if a card is active.
func (s *Session) ResumeSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrSessionClosed
	}

	if s.pendingBreak {
		state := s.engine.ApplyBreak()
		s.pendingBreak = false
		slog.Debug("Session.ResumeSession: break applied", "sessionID", s.id,
			"dysregulation", state.Dysregulation, "fatigue", state.Fatigue)
	}
	if s.card != nil {
		s.timer.Start(s.lastConfig.InactivityTimeout, s.onInactivity)
	}
	return nil
}

// State returns a copy of the current behavioral estimate.
func (s *Session) State() models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State()
}

// TimerActive reports whether the inactivity timer is currently armed.
func (s *Session) TimerActive() bool {
	return s.timer.Active()
}

// End closes the session and cancels its timer. Further calls return
// ErrSessionClosed.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.timer.Stop()
	slog.Debug("Session.End: session closed", "sessionID", s.id)
}

// produceSpeech decides between generated and fallback output. Inactivity
// events skip the generator entirely; generation is attempted at most once
// per event, and any failure falls through to the deterministic line.
func (s *Session) produceSpeech(ctx context.Context, event models.Event, level models.Level,
	constraints models.Constraints, interventions []models.Intervention) (string, string, bool) {

	needChoices := constraints.MustOfferChoices ||
		(event.Type == models.EventInactivityFired && level >= models.LevelYellow)

	fallbackChoice := ""
	if needChoices {
		fallbackChoice = coach.FallbackChoiceMessage(interventions)
	}

	if event.Type == models.EventInactivityFired || s.deps.Generator == nil {
		return coach.FallbackText(event, level), fallbackChoice, true
	}

	task := models.TaskContext{}
	if s.card != nil {
		task = *s.card
	}
	systemPrompt := coach.BuildSystemPrompt(event, task, level, constraints, s.attempt)

	candidate, err := s.deps.Generator.GenerateCandidate(ctx, systemPrompt, event.Response)
	if err != nil {
		slog.Warn("Session.produceSpeech: generation failed, using fallback",
			"sessionID", s.id, "error", err)
		return coach.FallbackText(event, level), fallbackChoice, true
	}

	if result := coach.Validate(candidate, constraints); !result.Valid {
		slog.Warn("Session.produceSpeech: candidate rejected, using fallback",
			"sessionID", s.id, "failedChecks", result.FailedChecks, "reason", result.Reason)
		return coach.FallbackText(event, level), fallbackChoice, true
	}

	text := candidate.CoachLine
	choiceMessage := ""
	if constraints.MustOfferChoices {
		text = coach.EnsureChoiceSuffix(text)
		choiceMessage = candidate.ChoicePresentation
	}
	return text, choiceMessage, false
}

// onInactivity synthesizes the timeout event and feeds it through the same
// serialized pipeline as transport events. The fire is claimed only after
// the session mutex is held: a response event that cancelled or re-armed the
// timer while this fire was waiting voids it, so a stale timeout never
// applies after the response that should have cancelled it.
func (s *Session) onInactivity(gen uint64) {
	s.mu.Lock()
	if !s.timer.claim(gen) {
		s.mu.Unlock()
		return
	}
	pkg, err := s.processEvent(context.Background(), models.Event{
		Type:       models.EventInactivityFired,
		ReceivedAt: s.now(),
	})
	s.mu.Unlock()

	if err != nil {
		slog.Error("Session.onInactivity: pipeline failed", "sessionID", s.id, "error", err)
		return
	}
	if s.deps.Sink != nil {
		s.deps.Sink(pkg)
	}
}

// notifyCaregiver fires the RED escalation alert without blocking the event
// pipeline; failures are logged, never surfaced to the child.
func (s *Session) notifyCaregiver(state models.State) {
	if s.deps.Notifier == nil {
		return
	}
	summary := fmt.Sprintf("dysregulation %.1f, a grown-up was requested on the screen", state.Dysregulation)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.deps.Notifier.NotifyEscalation(ctx, s.id, summary); err != nil {
			slog.Error("Session.notifyCaregiver: alert failed", "sessionID", s.id, "error", err)
		}
	}()
}

// record appends this event to the session review log, if a store is wired.
func (s *Session) record(event models.Event, level models.Level, signals []models.Signal,
	speech string, usedFallback bool) {
	if s.deps.Store == nil {
		return
	}
	err := s.deps.Store.AddSessionEvent(store.SessionEventRecord{
		SessionID:  s.id,
		EventType:  event.Type,
		Response:   event.Response,
		Correct:    event.Correct,
		Level:      level,
		Signals:    signals,
		SpeechText: speech,
		Fallback:   usedFallback,
		RecordedAt: s.now(),
	})
	if err != nil {
		slog.Error("Session.record: event log write failed", "sessionID", s.id, "error", err)
	}
}

// withResponseHistory fills in the previous responses from the session's own
// tracking when the transport did not supply them.
func (s *Session) withResponseHistory(event models.Event) models.Event {
	if event.Type != models.EventResponseReceived {
		return event
	}
	if event.PreviousResponse == "" {
		event.PreviousResponse = s.lastResponse
	}
	if event.SecondPreviousResponse == "" {
		event.SecondPreviousResponse = s.secondLastResponse
	}
	return event
}
