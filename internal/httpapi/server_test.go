package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rfid_session_go/internal/runner"
	"rfid_session_go/internal/sink"
	"rfid_session_go/sdk"
)

type fakeScanner struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	startErr error
	stats    *sdk.ReaderStats
}

func (f *fakeScanner) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeScanner) Stop() {
	f.mu.Lock()
	f.stops++
	f.running = false
	f.mu.Unlock()
}

func (f *fakeScanner) Status() runner.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return runner.Status{Running: f.running, URI: "sim://demo", UniqueSeen: 7, Stats: f.stats}
}

func (f *fakeScanner) StatusText() string {
	return fmt.Sprintf("running=%v", f.Status().Running)
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: bad json %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestHealthAndStatus(t *testing.T) {
	srv := New(":0", &fakeScanner{}, nil, zerolog.Nop())
	h := srv.Handler()

	rec, body := do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("health: %d %v", rec.Code, body)
	}
	rec, body = do(t, h, http.MethodGet, "/status")
	if rec.Code != http.StatusOK || body["uri"] != "sim://demo" || body["unique_seen"] != float64(7) {
		t.Fatalf("status: %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodGet, "/status?format=text")
	if !strings.Contains(rec.Body.String(), "running=false") {
		t.Fatalf("text status: %q", rec.Body.String())
	}

	rec, _ = do(t, h, http.MethodPost, "/health")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	sc := &fakeScanner{}
	h := New(":0", sc, nil, zerolog.Nop()).Handler()

	rec, _ := do(t, h, http.MethodGet, "/stats")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before stats, got %d", rec.Code)
	}

	sc.stats = &sdk.ReaderStats{Valid: sdk.StatsTemperature, TemperatureC: 41}
	rec, body := do(t, h, http.MethodGet, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	stats, _ := body["stats"].(map[string]any)
	if stats["TemperatureC"] != float64(41) {
		t.Fatalf("unexpected stats body: %v", body)
	}
}

func TestScanStartStop(t *testing.T) {
	sc := &fakeScanner{}
	h := New(":0", sc, nil, zerolog.Nop()).Handler()

	rec, body := do(t, h, http.MethodPost, "/scan/start")
	if rec.Code != http.StatusOK || body["ok"] != true || sc.starts != 1 {
		t.Fatalf("start: %d %v", rec.Code, body)
	}
	_, body = do(t, h, http.MethodPost, "/scan/start")
	if body["already_running"] != true || sc.starts != 1 {
		t.Fatalf("second start: %v", body)
	}
	rec, _ = do(t, h, http.MethodPost, "/scan/stop")
	if rec.Code != http.StatusOK || sc.stops != 1 || sc.running {
		t.Fatalf("stop: %d", rec.Code)
	}

	rec, _ = do(t, h, http.MethodGet, "/scan/start")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestScanStartFailure(t *testing.T) {
	sc := &fakeScanner{startErr: errors.New("port busy")}
	h := New(":0", sc, nil, zerolog.Nop()).Handler()
	rec, body := do(t, h, http.MethodPost, "/scan/start")
	if rec.Code != http.StatusBadGateway || body["error"] != "port busy" {
		t.Fatalf("expected 502, got %d %v", rec.Code, body)
	}
}

func TestEventsWebsocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	ts := httptest.NewServer(New(":0", &fakeScanner{}, hub, zerolog.Nop()).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ev := sink.Event{ID: "1", EPC: "E20001", New: true, SeenAt: time.Now()}
	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type string     `json:"type"`
		Data sink.Event `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if msg.Type != "tag" || msg.Data.EPC != "E20001" || !msg.Data.New {
		t.Fatalf("unexpected message: %+v", msg)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := New("127.0.0.1:0", &fakeScanner{}, nil, zerolog.Nop())
	srv.SetShutdownTimeout(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
}
