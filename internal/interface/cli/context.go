// Package cli implements the habitctl subcommands on top of the scoring
// engine. Each command is a kong struct with a Run(*Context) method.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alem-hub/habit-hub/internal/app"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// Context is passed to every command's Run method.
type Context struct {
	Engine *app.Engine
	Out    io.Writer
	JSON   bool
}

// printJSON writes v as indented JSON.
func (c *Context) printJSON(v any) error {
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *Context) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

// day resolves a YYYY-MM-DD flag; empty or "today" is the engine's today.
func (c *Context) day(value string) (time.Time, error) {
	if value == "" || value == "today" {
		return timeutil.Today(c.Engine.Clock), nil
	}
	d, err := timeutil.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return d, nil
}
