// Package debug is the process-local log sink used by the scanner,
// server and CLI: a mutex-guarded writer with a build-time or
// environment toggle.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// EnableDebug can be set at build time:
// go build -ldflags "-X github.com/corpusd/corpusd/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
)

// SetOutput sets the writer debug output goes to. Pass nil to disable.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return output
}

// Enabled reports whether debug logging is active.
func Enabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("CORPUSD_DEBUG")
	return v == "1" || v == "true"
}

// Log writes a component-tagged debug line, e.g. Log("scanner", "skip %s (mtime unchanged)", path).
func Log(component, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[%s] "+format+"\n", append([]interface{}{component}, args...)...)
}

// Warn always writes, regardless of the debug flag: recoverable
// conditions worth surfacing to an operator (archive-member skips,
// extraction failures) but that are not exceptional enough to abort.
func Warn(component, format string, args ...interface{}) {
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[%s:WARN] "+format+"\n", append([]interface{}{component}, args...)...)
}
