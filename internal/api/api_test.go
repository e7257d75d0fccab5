package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kidvoice-labs/safegate/internal/models"
	"github.com/kidvoice-labs/safegate/internal/orchestrator"
	"github.com/kidvoice-labs/safegate/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	st := store.NewInMemoryStore()
	manager := orchestrator.NewManager(orchestrator.Dependencies{
		Store:           st,
		PlannedDuration: 15 * time.Minute,
	})
	srv := NewServer(manager, st)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		manager.Shutdown()
	})
	return srv, ts
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding session response: %v", err)
	}
	if body.SessionID == "" {
		t.Fatal("expected non-empty session ID")
	}
	return body.SessionID
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("posting to %s: %v", url, err)
	}
	return resp
}

func setCard(t *testing.T, ts *httptest.Server, id string) {
	t.Helper()
	resp := postJSON(t, ts.URL+"/sessions/"+id+"/card", models.TaskContext{
		Category:      "weather",
		Question:      "What do you see in the sky?",
		TargetAnswers: []string{"sun"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("setting card: expected 200, got %d", resp.StatusCode)
	}
}

func TestSessionEventFlow(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)
	setCard(t, ts, id)

	resp := postJSON(t, ts.URL+"/sessions/"+id+"/events", models.Event{
		Type:     models.EventResponseReceived,
		Response: "sun",
		Correct:  true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var pkg models.UIPackage
	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		t.Fatalf("decoding package: %v", err)
	}
	if pkg.Overlay.SafetyLevel != models.LevelGreen {
		t.Errorf("expected GREEN overlay, got %v", pkg.Overlay.SafetyLevel)
	}
	if pkg.Speech.Text == "" {
		t.Error("expected speech text in package")
	}
}

func TestEventWithoutCardConflicts(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)

	resp := postJSON(t, ts.URL+"/sessions/"+id+"/events", models.Event{
		Type:     models.EventResponseReceived,
		Response: "sun",
		Correct:  true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 without an active card, got %d", resp.StatusCode)
	}
}

func TestUnknownSessionReturnsNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/sessions/nope/events", models.Event{
		Type:     models.EventResponseReceived,
		Response: "sun",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMalformedEventBodyRejected(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)

	resp, err := http.Post(ts.URL+"/sessions/"+id+"/events", "application/json",
		strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("posting: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChoiceValidation(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)
	setCard(t, ts, id)

	resp := postJSON(t, ts.URL+"/sessions/"+id+"/choice", choiceRequest{Action: "DANCE_PARTY"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown intervention, got %d", resp.StatusCode)
	}

	resp2 := postJSON(t, ts.URL+"/sessions/"+id+"/choice",
		choiceRequest{Action: models.InterventionStartBreak})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for valid choice, got %d", resp2.StatusCode)
	}

	resp3 := postJSON(t, ts.URL+"/sessions/"+id+"/resume", nil)
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for resume, got %d", resp3.StatusCode)
	}
}

func TestEndSessionRemovesIt(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+id, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("deleting session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp2 := postJSON(t, ts.URL+"/sessions/"+id+"/resume", nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after end, got %d", resp2.StatusCode)
	}
}

func TestReviewEndpointReturnsRecords(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)
	setCard(t, ts, id)

	resp := postJSON(t, ts.URL+"/sessions/"+id+"/events", models.Event{
		Type:     models.EventResponseReceived,
		Response: "sun",
		Correct:  true,
	})
	resp.Body.Close()

	listResp, err := http.Get(ts.URL + "/sessions/" + id + "/events")
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", listResp.StatusCode)
	}
	var records []store.SessionEventRecord
	if err := json.NewDecoder(listResp.Body).Decode(&records); err != nil {
		t.Fatalf("decoding records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(records))
	}
	if records[0].SessionID != id || !records[0].Correct {
		t.Errorf("unexpected record %+v", records[0])
	}
}

func TestStreamReceivesBroadcasts(t *testing.T) {
	srv, ts := newTestServer(t)
	id := createSession(t, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing stream: %v", err)
	}
	defer conn.Close()

	// Subscription is registered on the server side just after the upgrade
	// handshake; wait for it before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.hub.mu.RLock()
		subscribed := len(srv.hub.conns[id]) > 0
		srv.hub.mu.RUnlock()
		if subscribed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	pkg := models.UIPackage{
		Overlay: models.Overlay{SafetyLevel: models.LevelYellow},
		Speech:  models.Speech{Text: "Are you still there? Let's look at the card together!"},
	}
	srv.hub.broadcast(id, pkg)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.UIPackage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading streamed package: %v", err)
	}
	if got.Overlay.SafetyLevel != models.LevelYellow {
		t.Errorf("expected YELLOW overlay on stream, got %v", got.Overlay.SafetyLevel)
	}
	if got.Speech.Text != pkg.Speech.Text {
		t.Errorf("unexpected speech text %q", got.Speech.Text)
	}
}

func TestStreamForUnknownSessionRejected(t *testing.T) {
	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/nope/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected HTTP 404 on failed upgrade, got %+v", resp)
	}
}
