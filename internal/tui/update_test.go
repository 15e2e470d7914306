package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"rfid_session_go/internal/runner"
	"rfid_session_go/internal/sink"
)

type fakeController struct {
	status   runner.Status
	startErr error
	starts   int
	stops    int
}

func (f *fakeController) Start(context.Context) error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.status.Running = true
	return nil
}

func (f *fakeController) Stop() {
	f.stops++
	f.status.Running = false
}

func (f *fakeController) Status() runner.Status { return f.status }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatal("unexpected model type")
	}
	return nm, cmd
}

func tagEvent(epc string, antenna int) tagMsg {
	return tagMsg{Event: sink.Event{EPC: epc, Antenna: &antenna, SeenAt: time.Now()}}
}

func TestTagEventsAggregateByEPC(t *testing.T) {
	events := make(chan sink.Event)
	m := NewModel(context.Background(), &fakeController{}, events)

	m, cmd := step(t, m, tagEvent("E2000001", 1))
	if cmd == nil {
		t.Fatal("expected follow-up wait command")
	}
	m, _ = step(t, m, tagEvent("E2000001", 2))
	m, _ = step(t, m, tagEvent("E2000002", 1))
	m, _ = step(t, m, tagEvent("E2000002", 1))
	m, _ = step(t, m, tagEvent("E2000002", 1))

	if len(m.tags) != 2 || m.reads != 5 {
		t.Fatalf("unexpected aggregation: tags=%d reads=%d", len(m.tags), m.reads)
	}
	rows := m.visibleTags()
	if rows[0].EPC != "E2000002" || rows[0].Reads != 3 {
		t.Fatalf("rows not ordered by reads: %+v", rows)
	}
	if m.tags[m.byEPC["E2000001"]].Antenna != 2 {
		t.Fatalf("antenna not updated")
	}
	if !strings.Contains(m.View(), "E2000002") {
		t.Fatalf("view does not show tag")
	}
}

func TestFilterInput(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{}, nil)
	m, _ = step(t, m, tagEvent("E2000001", 1))
	m, _ = step(t, m, tagEvent("3000AAAA", 1))

	m, _ = step(t, m, key("/"))
	if !m.filtering {
		t.Fatal("expected filter mode")
	}
	for _, r := range "e2" {
		m, _ = step(t, m, key(string(r)))
	}
	m, _ = step(t, m, key("enter"))
	if m.filtering || m.filter != "E2" {
		t.Fatalf("filter not applied: %q", m.filter)
	}
	rows := m.visibleTags()
	if len(rows) != 1 || rows[0].EPC != "E2000001" {
		t.Fatalf("unexpected filtered rows: %+v", rows)
	}

	m, _ = step(t, m, key("/"))
	m, _ = step(t, m, key("esc"))
	if m.filtering || m.filter != "E2" {
		t.Fatalf("esc changed filter: %q", m.filter)
	}
}

func TestStartStopToggle(t *testing.T) {
	ctl := &fakeController{}
	m := NewModel(context.Background(), ctl, nil)

	m, cmd := step(t, m, key("s"))
	if cmd == nil {
		t.Fatal("expected start command")
	}
	m, _ = step(t, m, cmd())
	if ctl.starts != 1 || !m.lastStatus.Running || m.status != "Reading started" {
		t.Fatalf("start not applied: %+v %q", m.lastStatus, m.status)
	}

	m, cmd = step(t, m, key("s"))
	m, _ = step(t, m, cmd())
	if ctl.stops != 1 || m.lastStatus.Running {
		t.Fatalf("stop not applied")
	}

	ctl.startErr = errors.New("port busy")
	m, cmd = step(t, m, key("s"))
	m, _ = step(t, m, cmd())
	if !strings.Contains(m.status, "port busy") || statusTag(m.status) != "[ERR]" {
		t.Fatalf("start error not shown: %q", m.status)
	}
}

func TestStatusTickLogsTransitions(t *testing.T) {
	ctl := &fakeController{}
	m := NewModel(context.Background(), ctl, nil)

	ctl.status = runner.Status{Running: true, Connected: true, URI: "sim://demo", Model: "M6e", Region: "NA"}
	m, cmd := step(t, m, statusTickMsg{})
	if cmd == nil {
		t.Fatal("expected next tick")
	}
	ctl.status = runner.Status{Running: true, LastError: "read: timeout"}
	m, _ = step(t, m, statusTickMsg{})

	joined := strings.Join(m.logs, "\n")
	if !strings.Contains(joined, "connected sim://demo") || !strings.Contains(joined, "reader error: read: timeout") || !strings.Contains(joined, "reader disconnected") {
		t.Fatalf("unexpected logs:\n%s", joined)
	}
}

func TestScreensAndQuit(t *testing.T) {
	ctl := &fakeController{}
	m := NewModel(context.Background(), ctl, nil)

	m, _ = step(t, m, key("tab"))
	if m.activeScreen != screenStats {
		t.Fatalf("tab did not advance: %d", m.activeScreen)
	}
	if !strings.Contains(m.View(), "No statistics reported") {
		t.Fatalf("stats page missing placeholder")
	}
	m, _ = step(t, m, key("4"))
	if m.activeScreen != screenHelp {
		t.Fatalf("number key did not jump")
	}
	_, cmd := step(t, m, key("q"))
	if cmd == nil || ctl.stops != 1 {
		t.Fatalf("quit did not stop controller")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}

func TestEventsClosed(t *testing.T) {
	events := make(chan sink.Event)
	close(events)
	m := NewModel(context.Background(), nil, events)
	msg := waitEventCmd(events)()
	if _, ok := msg.(eventsClosedMsg); !ok {
		t.Fatalf("expected closed message, got %T", msg)
	}
	m, _ = step(t, m, msg)
	if len(m.logs) != 1 {
		t.Fatalf("closed stream not logged")
	}
}
