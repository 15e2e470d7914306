package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"

	"rfid_session_go/internal/runner"
	"rfid_session_go/internal/sink"
)

type screen int

const (
	screenLive screen = iota
	screenStats
	screenLogs
	screenHelp
)

var screens = []struct {
	name   string
	screen screen
}{
	{name: "Live", screen: screenLive},
	{name: "Stats", screen: screenStats},
	{name: "Logs", screen: screenLogs},
	{name: "Help", screen: screenHelp},
}

// Controller is the reader loop the monitor drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Status() runner.Status
}

type tagMsg struct {
	Event sink.Event
}

type eventsClosedMsg struct{}

type statusTickMsg struct{}

type toggleFinishedMsg struct {
	Started bool
	Err     error
}

type tagRow struct {
	EPC      string
	Reads    int
	Antenna  int
	RSSI     int
	HasRSSI  bool
	Data     string
	Error    string
	LastSeen time.Time
}

// Model is the app state.
type Model struct {
	ctx    context.Context
	ctl    Controller
	events <-chan sink.Event

	activeScreen screen
	tagIndex     int
	logScroll    int

	tags  []tagRow
	byEPC map[string]int
	reads int

	input     textinput.Model
	filtering bool
	filter    string

	status     string
	logs       []string
	lastStatus runner.Status

	width  int
	height int
}

const (
	maxLogs        = 500
	statusInterval = 500 * time.Millisecond
)
