package console

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run connects to addr and runs the console until the user quits or ctx is
// done.
func Run(ctx context.Context, addr string) error {
	client, err := Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	program := tea.NewProgram(NewModel(client, addr), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("console stopped: %w", err)
	}

	if model, ok := final.(Model); ok && model.Err() != nil {
		return fmt.Errorf("lost connection to %s: %w", addr, model.Err())
	}
	return nil
}
