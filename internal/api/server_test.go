package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nugget/remora/internal/config"
	"github.com/nugget/remora/internal/events"
	"github.com/nugget/remora/internal/reminders"
)

const serverYAML = `
contexts:
  default:
    template: t0
    injection_rate: 0.1
    temperature: 0.7
  deploy:
    template: t1
    injection_rate: 1.0
    priority: 5
    keywords: [deploy]
    description: deployment safety checks
templates:
  t0: {type: base, prompt: "Stay safe."}
  t1: {type: base, prompt: "Confirm rollback plan for {context}."}
`

// alwaysInject draws 0, so any positive rate passes the gate.
type alwaysInject struct{}

func (alwaysInject) Float64() float64 { return 0 }

func newTestServer(t *testing.T) (*Server, *events.Bus) {
	t.Helper()
	cfg, err := config.Parse([]byte(serverYAML))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.New()
	engine := reminders.NewEngine(cfg, reminders.Deps{
		Logger:     logger,
		Bus:        bus,
		RandSource: alwaysInject{},
	})
	return NewServer(cfg, engine, bus, logger), bus
}

func TestHandleEvaluate(t *testing.T) {
	srv, _ := newTestServer(t)

	body := bytes.NewReader([]byte(`{"message": "let's deploy now"}`))
	req := httptest.NewRequest("POST", "/v1/evaluate", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp EvaluateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !strings.HasPrefix(resp.RequestID, "req_") {
		t.Errorf("request_id = %q, want req_ prefix", resp.RequestID)
	}
	if resp.Decision.Context != "deploy" {
		t.Errorf("context = %q, want deploy", resp.Decision.Context)
	}
	if resp.Reminder == nil || *resp.Reminder != "Confirm rollback plan for deploy." {
		t.Errorf("reminder = %v, want rendered template", resp.Reminder)
	}
	if !resp.Injected {
		t.Error("injected = false, want true at rate 1.0")
	}
	if resp.Temperature == nil || *resp.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", resp.Temperature)
	}
}

func TestHandleEvaluate_BadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/v1/evaluate", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDetect(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"message": "please DEPLOY now"}`)
	req := httptest.NewRequest("POST", "/v1/detect", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp DetectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Detected) != 1 || resp.Detected[0] != "deploy" {
		t.Errorf("detected = %v, want [deploy]", resp.Detected)
	}
}

func TestHandleContexts(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/v1/contexts", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Contexts []ContextSummary `json:"contexts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Contexts) != 2 {
		t.Fatalf("got %d contexts, want 2", len(resp.Contexts))
	}
	// Declaration order.
	if resp.Contexts[0].Name != "default" || resp.Contexts[1].Name != "deploy" {
		t.Errorf("context order = [%s %s], want [default deploy]",
			resp.Contexts[0].Name, resp.Contexts[1].Name)
	}
	if resp.Contexts[1].Description != "deployment safety checks" {
		t.Errorf("description = %q", resp.Contexts[1].Description)
	}
}

func TestHandleDecisions_NoStore(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/v1/decisions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a store", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("body = %q, want healthy", rec.Body.String())
	}
}

func TestEventsWS_StreamsBusEvents(t *testing.T) {
	srv, bus := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the handler a moment to subscribe before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if bus.SubscriberCount() == 0 {
		t.Fatal("handler never subscribed to the bus")
	}

	bus.Publish(events.Event{
		Source: events.SourceEngine,
		Kind:   events.KindReminderInjected,
		Data:   map[string]any{"context": "deploy"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt events.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Kind != events.KindReminderInjected {
		t.Errorf("kind = %q, want %q", evt.Kind, events.KindReminderInjected)
	}
	if evt.Data["context"] != "deploy" {
		t.Errorf("data.context = %v, want deploy", evt.Data["context"])
	}
}
