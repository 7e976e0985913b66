// -----------------------------------------------------------------------
// Crash Protection - last-resort panic reporting for the daemon
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// CrashLogDir is where crash reports land; set during startup
var CrashLogDir = "./logs"

// InstallCrashHandler prepares the crash report directory. Call early in
// main, before anything that can panic.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to create log directory: %v\n", err)
	}
}

// RecoverWithCrashFile is the deferred top-of-main recovery: it writes a
// crash report and exits nonzero. The logger may not exist yet when this
// fires, so the path uses only stderr and direct file IO.
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		writeCrashReport(r, currentStack())
		os.Exit(1)
	}
}

// writeCrashReport persists the panic, the panicking goroutine's stack, a
// full goroutine dump and a one-line runtime summary. Everything best-effort:
// if the file cannot be written the report goes to stderr instead.
func writeCrashReport(panicVal interface{}, stack string) {
	name := fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05"))
	path := filepath.Join(CrashLogDir, name)

	report := fmt.Sprintf(
		"colligo crash report\ntime: %s\nversion: %s\n\npanic: %v\n\n%s\n--- all goroutines ---\n%s\nruntime: goroutines=%d cpus=%d %s/%s\n",
		time.Now().Format(time.RFC3339),
		GetFullVersion(),
		panicVal,
		stack,
		allGoroutineStacks(),
		runtime.NumGoroutine(), runtime.NumCPU(), runtime.GOOS, runtime.GOARCH,
	)

	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n%s", err, report)
		return
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - report saved to %s !!!\npanic: %v\n", path, panicVal)
}

func currentStack() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// allGoroutineStacks dumps every goroutine, growing the buffer until the
// dump fits (capped at 16MB)
func allGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 16*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}
