// Package detect derives discrete behavioral signals from a single
// interaction event. Audio cues map 1:1 from the upstream amplitude flags;
// text cues come from a deterministic keyword lexicon or, when configured,
// an external classifier.
package detect

import (
	"context"
	"strings"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// TextCueClassifier is an optional external classifier for text-derived cues.
// Implementations may be remote and non-deterministic; the orchestrator
// treats a configured classifier as a suspension point.
type TextCueClassifier interface {
	Classify(ctx context.Context, utterance string) ([]models.Signal, error)
}

// Lexicon maps a text-cue signal to the lowercase keywords that trigger it.
type Lexicon map[models.Signal][]string

// DefaultLexicon returns the built-in keyword lexicon used when no custom
// lexicon is configured. Matching is case-insensitive substring matching.
func DefaultLexicon() Lexicon {
	return Lexicon{
		models.SignalWantsBreak:  {"break", "pause", "rest"},
		models.SignalWantsQuit:   {"stop", "quit", "all done", "go home", "no more"},
		models.SignalFrustration: {"too hard", "can't", "cant", "hate", "ugh", "not fair"},
		models.SignalDistress:    {"scared", "help", "hurt", "want mommy", "want daddy"},
	}
}

// textCueOrder fixes the emission order of text-derived signals so the
// output is stable for logging and testing.
var textCueOrder = []models.Signal{
	models.SignalWantsBreak,
	models.SignalWantsQuit,
	models.SignalFrustration,
	models.SignalDistress,
}

// Detector turns one event into an ordered set of behavioral signals.
type Detector struct {
	lexicon    Lexicon
	classifier TextCueClassifier
}

// Option configures a Detector.
type Option func(*Detector)

// WithLexicon replaces the default keyword lexicon.
func WithLexicon(lex Lexicon) Option {
	return func(d *Detector) {
		if lex != nil {
			d.lexicon = lex
		}
	}
}

// WithClassifier installs an external text-cue classifier. When the
// classifier fails the detector falls back to the keyword lexicon.
func WithClassifier(c TextCueClassifier) Option {
	return func(d *Detector) { d.classifier = c }
}

// NewDetector creates a detector with the default lexicon unless overridden.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{lexicon: DefaultLexicon()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detection is the outcome of one Detect call. Signals are valid regardless
// of ClassifierErr, which carries the classifier failure that forced the
// keyword fallback so the caller can log it; the detector itself performs no
// I/O and emits no logs.
type Detection struct {
	Signals       []models.Signal
	ClassifierErr error
}

// Detect derives the signal set for one event. Rules are non-exclusive:
// several signals may fire for the same event. The keyword path is fully
// deterministic; order is audio cues, text cues, then REPETITIVE_RESPONSE.
func (d *Detector) Detect(ctx context.Context, event models.Event) (Detection, error) {
	var det Detection

	if event.Audio.Screaming {
		det.Signals = append(det.Signals, models.SignalScreaming)
	}
	if event.Audio.Crying {
		det.Signals = append(det.Signals, models.SignalCrying)
	}
	if event.Audio.ProlongedSilence {
		det.Signals = append(det.Signals, models.SignalProlongedSilence)
	}

	if event.Type == models.EventResponseReceived && event.Response != "" {
		cues, classifierErr, err := d.textCues(ctx, event.Response)
		if err != nil {
			return Detection{}, err
		}
		det.ClassifierErr = classifierErr
		det.Signals = append(det.Signals, cues...)

		if sameUtterance(event.Response, event.PreviousResponse) {
			det.Signals = append(det.Signals, models.SignalRepetitiveResponse)
		}
	}

	return det, nil
}

// textCues resolves text-derived signals via the external classifier when one
// is configured, falling back to the keyword lexicon on classifier failure.
// A classifier failure is reported alongside the fallback cues; only context
// cancellation aborts detection.
func (d *Detector) textCues(ctx context.Context, utterance string) (cues []models.Signal, classifierErr, err error) {
	if d.classifier != nil {
		cues, err := d.classifier.Classify(ctx, utterance)
		if err == nil {
			return orderTextCues(cues), nil, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return d.keywordCues(utterance), err, nil
	}
	return d.keywordCues(utterance), nil, nil
}

// keywordCues runs the deterministic lexicon path.
func (d *Detector) keywordCues(utterance string) []models.Signal {
	lower := strings.ToLower(utterance)
	var cues []models.Signal
	for _, sig := range textCueOrder {
		for _, kw := range d.lexicon[sig] {
			if strings.Contains(lower, kw) {
				cues = append(cues, sig)
				break
			}
		}
	}
	return cues
}

// orderTextCues filters classifier output down to known text cues and fixes
// their order, dropping duplicates and anything outside the closed set.
func orderTextCues(cues []models.Signal) []models.Signal {
	var ordered []models.Signal
	for _, sig := range textCueOrder {
		if models.HasSignal(cues, sig) {
			ordered = append(ordered, sig)
		}
	}
	return ordered
}

// sameUtterance compares two transcripts ignoring case and surrounding
// whitespace, since transcription casing is not meaningful.
func sameUtterance(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
