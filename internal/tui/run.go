package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"rfid_session_go/internal/sink"
)

func Run(ctx context.Context, ctl Controller, events <-chan sink.Event) error {
	program := tea.NewProgram(NewModel(ctx, ctl, events), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}
