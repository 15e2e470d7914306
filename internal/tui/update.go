package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"rfid_session_go/internal/sink"
)

func NewModel(ctx context.Context, ctl Controller, events <-chan sink.Event) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	input := textinput.New()
	input.Placeholder = "EPC prefix, e.g. E200"
	input.CharLimit = 64
	input.Width = 40

	return Model{
		ctx:          ctx,
		ctl:          ctl,
		events:       events,
		activeScreen: screenLive,
		byEPC:        make(map[string]int),
		input:        input,
		status:       "Idle, press s to start reading",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitEventCmd(m.events), statusTickCmd(statusInterval))
}

func waitEventCmd(events <-chan sink.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return tagMsg{Event: ev}
	}
}

func statusTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func toggleCmd(ctx context.Context, ctl Controller, start bool) tea.Cmd {
	return func() tea.Msg {
		if !start {
			ctl.Stop()
			return toggleFinishedMsg{Started: false}
		}
		return toggleFinishedMsg{Started: true, Err: ctl.Start(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.width > 20 {
			m.input.Width = m.width - 14
		}
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilterInput(msg)
		}
		return m.updateKey(msg)

	case tagMsg:
		m.onTag(msg.Event)
		return m, waitEventCmd(m.events)

	case eventsClosedMsg:
		m.pushLog("event stream closed")
		return m, nil

	case statusTickMsg:
		m.refreshStatus()
		return m, statusTickCmd(statusInterval)

	case toggleFinishedMsg:
		switch {
		case msg.Err != nil:
			m.status = "Start failed: " + msg.Err.Error()
			m.pushLog("start error: " + msg.Err.Error())
		case msg.Started:
			m.status = "Reading started"
			m.pushLog("reader loop started")
		default:
			m.status = "Reading stopped"
			m.pushLog("reader loop stopped")
		}
		m.refreshStatus()
		return m, nil
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.ctl != nil {
			m.ctl.Stop()
		}
		return m, tea.Quit
	case "tab":
		m.activeScreen = screen((int(m.activeScreen) + 1) % len(screens))
		return m, nil
	case "1", "2", "3", "4":
		m.activeScreen = screens[int(msg.String()[0]-'1')].screen
		return m, nil
	case "s":
		if m.ctl == nil {
			return m, nil
		}
		if m.lastStatus.Running {
			m.status = "Stopping..."
			return m, toggleCmd(m.ctx, m.ctl, false)
		}
		m.status = "Starting..."
		return m, toggleCmd(m.ctx, m.ctl, true)
	}

	switch m.activeScreen {
	case screenLive:
		return m.updateLiveKeys(msg)
	case screenLogs:
		return m.updateLogKeys(msg)
	}
	return m, nil
}

func (m Model) updateLiveKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.visibleTags()
	switch msg.String() {
	case "up", "k":
		m.tagIndex = clampInt(m.tagIndex-1, 0, max(len(visible)-1, 0))
	case "down", "j":
		m.tagIndex = clampInt(m.tagIndex+1, 0, max(len(visible)-1, 0))
	case "/":
		m.filtering = true
		m.input.SetValue(m.filter)
		m.input.Focus()
		m.status = "Filter: type an EPC prefix, Enter to apply"
	case "c":
		m.tags = nil
		m.byEPC = make(map[string]int)
		m.reads = 0
		m.tagIndex = 0
		m.status = "Tag table cleared"
	}
	return m, nil
}

func (m Model) updateLogKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.logScroll = clampInt(m.logScroll+1, 0, max(len(m.logs)-1, 0))
	case "down", "j":
		m.logScroll = clampInt(m.logScroll-1, 0, max(len(m.logs)-1, 0))
	case "c":
		m.logs = nil
		m.logScroll = 0
		m.status = "Logs cleared"
	}
	return m, nil
}

func (m Model) updateFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filter = strings.ToUpper(strings.TrimSpace(m.input.Value()))
		m.filtering = false
		m.input.Blur()
		m.tagIndex = 0
		if m.filter == "" {
			m.status = "Filter cleared"
		} else {
			m.status = "Filter: " + m.filter
		}
		return m, nil
	case "esc":
		m.filtering = false
		m.input.Blur()
		m.status = "Filter unchanged"
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) onTag(ev sink.Event) {
	m.reads++
	idx, ok := m.byEPC[ev.EPC]
	if !ok {
		m.tags = append(m.tags, tagRow{EPC: ev.EPC})
		idx = len(m.tags) - 1
		m.byEPC[ev.EPC] = idx
		m.status = "New tag " + trimText(ev.EPC, 24)
	}
	row := &m.tags[idx]
	row.Reads++
	row.LastSeen = ev.SeenAt
	if ev.Antenna != nil {
		row.Antenna = *ev.Antenna
	}
	if ev.RSSI != nil {
		row.RSSI = *ev.RSSI
		row.HasRSSI = true
	}
	if ev.Data != "" {
		row.Data = ev.Data
	}
	row.Error = ev.Error
	if ev.Error != "" {
		m.pushLog(fmt.Sprintf("tag %s op error: %s", trimText(ev.EPC, 24), ev.Error))
	}
}

func (m *Model) refreshStatus() {
	if m.ctl == nil {
		return
	}
	prev := m.lastStatus
	m.lastStatus = m.ctl.Status()
	st := m.lastStatus
	if st.LastError != "" && st.LastError != prev.LastError {
		m.pushLog("reader error: " + st.LastError)
	}
	if st.Connected && !prev.Connected {
		m.pushLog(fmt.Sprintf("connected %s (%s, region %s)", st.URI, fallback(st.Model, "?"), fallback(st.Region, "?")))
	}
	if !st.Connected && prev.Connected {
		m.pushLog("reader disconnected")
	}
}

// visibleTags applies the EPC filter and orders rows by most reads.
func (m Model) visibleTags() []tagRow {
	rows := make([]tagRow, 0, len(m.tags))
	for _, row := range m.tags {
		if m.filter != "" && !strings.HasPrefix(row.EPC, m.filter) {
			continue
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Reads > rows[j].Reads })
	return rows
}

func (m *Model) pushLog(line string) {
	stamp := time.Now().Format("15:04:05")
	m.logs = append(m.logs, stamp+" "+line)
	if len(m.logs) > maxLogs {
		m.logs = append([]string(nil), m.logs[len(m.logs)-maxLogs:]...)
	}
}
