// ABOUTME: Board command that opens the interactive kanban board
// ABOUTME: Falls back to the plain lead listing when stdout is not a terminal
package cli

import (
	"context"
	"flag"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/pipedash/dashboard"
	"github.com/harperreed/pipedash/tui"
)

// BoardCommand runs the TUI until the user quits or ctx is cancelled.
func BoardCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	fs.SetOutput(out)
	plain := fs.Bool("plain", false, "Print the board instead of opening the TUI")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *plain || !IsTerminal() {
		return ListLeadsCommand(ctx, d, fs.Args())
	}

	m := tui.NewModel(ctx, d)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("board failed: %w", err)
	}
	return nil
}
