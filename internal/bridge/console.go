package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
)

// installConsole registers the console levels log/info/warn/error plus
// debug (§4.2 "Console"),
// appending to Console rather than writing to the host's own stdout so the
// invocation's captured log lines can be returned to the caller verbatim.
func (b *Bridge) installConsole(vm *goja.Runtime) error {
	levels := []string{"log", "info", "warn", "error", "debug"}
	for _, level := range levels {
		level := level
		name := "_console_" + level
		if err := set(vm, name, func(call goja.FunctionCall) goja.Value {
			b.Console = append(b.Console, domain.LogEntry{
				Level:     level,
				Message:   formatArgs(call),
				Timestamp: time.Now().UTC(),
			})
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}
	return nil
}

func formatArgs(call goja.FunctionCall) string {
	parts := make([]any, 0, len(call.Arguments))
	for _, a := range call.Arguments {
		parts = append(parts, a.Export())
	}
	if len(parts) == 1 {
		if s, ok := parts[0].(string); ok {
			return s
		}
	}
	return strings.TrimSuffix(fmt.Sprintln(parts...), "\n")
}
