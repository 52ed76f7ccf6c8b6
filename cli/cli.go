// ABOUTME: Shared helpers for the pipedash CLI commands
// ABOUTME: Output and input streams, id parsing, confirmation prompts, and error formatting
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/harperreed/pipedash/backend"
)

var (
	out io.Writer = os.Stdout
	in  io.Reader = os.Stdin

	// interactive reports whether prompts can be answered.
	interactive = func() bool {
		f, ok := in.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
)

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func parseID(args []string, what string) (uuid.UUID, error) {
	if len(args) == 0 {
		return uuid.Nil, fmt.Errorf("%s ID is required", what)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s ID: %w", what, err)
	}
	return id, nil
}

func parseOptionalID(s, what string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s ID: %w", what, err)
	}
	return &id, nil
}

// confirm asks a yes/no question on the terminal. Without one, only
// assumeYes can approve.
func confirm(prompt string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !interactive() {
		return false, fmt.Errorf("confirmation required: re-run with --yes")
	}
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// describe turns validation failures into one line per field.
func describe(err error) error {
	fields := backend.FieldErrors(err)
	if len(fields) == 0 {
		return err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s: %s", name, fields[name])
	}
	return fmt.Errorf("%w:%s", backend.ErrValidationRejected, b.String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
