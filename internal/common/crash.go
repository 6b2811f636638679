// -----------------------------------------------------------------------
// Crash Protection - crash report written from main's deferred recover
// -----------------------------------------------------------------------

package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

var (
	crashMu  sync.Mutex
	crashDir = "./logs"
	// crashState reports live state (e.g. which workers hold sessions) into the report
	crashState func() map[string]string
)

// InstallCrashHandler sets the crash report directory and an optional state reporter
func InstallCrashHandler(logDir string, state func() map[string]string) {
	crashMu.Lock()
	defer crashMu.Unlock()
	if logDir != "" {
		crashDir = logDir
	}
	crashState = state
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to create log directory: %v\n", err)
	}
}

func buildCrashReport(panicVal any, stack string, state map[string]string) []byte {
	var report bytes.Buffer
	fmt.Fprintf(&report, "=== PAGEKIT CRASH REPORT ===\n")
	fmt.Fprintf(&report, "Time: %s\nVersion: %s\n\n", time.Now().Format(time.RFC3339), GetFullVersion())
	fmt.Fprintf(&report, "=== PANIC ===\n%v\n\n", panicVal)
	fmt.Fprintf(&report, "=== STACK ===\n%s\n", stack)

	if len(state) > 0 {
		keys := make([]string, 0, len(state))
		for k := range state {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		report.WriteString("=== STATE ===\n")
		for _, k := range keys {
			fmt.Fprintf(&report, "%s: %s\n", k, state[k])
		}
		report.WriteString("\n")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&report, "=== RUNTIME ===\nGoroutines: %d\nHeapAlloc: %d MB\nNumGC: %d\n\n",
		runtime.NumGoroutine(), mem.HeapAlloc/1024/1024, mem.NumGC)

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	fmt.Fprintf(&report, "=== ALL GOROUTINES ===\n%s\n", buf[:n])
	return report.Bytes()
}

// WriteCrashFile writes a crash report and returns its path, or "" when it had to fall back to stderr
func WriteCrashFile(panicVal any, stack string) string {
	crashMu.Lock()
	dir, stateFn := crashDir, crashState
	crashMu.Unlock()

	var state map[string]string
	if stateFn != nil {
		state = stateFn()
	}
	report := buildCrashReport(panicVal, stack, state)

	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))
	if err := os.WriteFile(path, report, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to write crash file: %v\n%s", err, report)
		return ""
	}
	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\nPanic: %v\n", path, panicVal)
	return path
}

// RecoverWithCrashFile is deferred at the top of main. It writes a crash report,
// logs where it went and exits non-zero.
//
//	defer common.RecoverWithCrashFile(logger)
func RecoverWithCrashFile(logger arbor.ILogger) {
	r := recover()
	if r == nil {
		return
	}
	path := WriteCrashFile(r, string(debug.Stack()))
	if logger != nil {
		logger.Error().
			Str("panic", fmt.Sprintf("%v", r)).
			Str("crash_file", path).
			Msg("Fatal panic")
	}
	os.Exit(2)
}
