package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// reportedError marks an error whose details were already printed.
type reportedError struct{ title string }

func (e *reportedError) Error() string { return e.title }

func reported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

func success(format string, a ...any) {
	green.Printf("✓ "+format+"\n", a...)
}

func warning(format string, a ...any) {
	yellow.Fprintf(os.Stderr, "! "+format+"\n", a...)
}

// failure prints a titled error with an explanation and hints to stderr and
// returns an error cobra will not print again.
func failure(title, explanation string, hints []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprintf(os.Stderr, "%s\n", explanation)
	if len(hints) > 0 {
		fmt.Fprintln(os.Stderr)
		for _, h := range hints {
			fmt.Fprintf(os.Stderr, "  - %s\n", h)
		}
	}
	return &reportedError{title: title}
}

func stateColor(state string) *color.Color {
	if state == "running" {
		return green
	}
	return yellow
}
