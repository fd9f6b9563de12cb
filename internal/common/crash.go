package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// CrashLogDir receives crash reports; set by InstallCrashHandler
var CrashLogDir = "logs"

// InstallCrashHandler sets the crash report directory, created on first crash.
// Pair it with a deferred RecoverWithCrashFile at the top of main.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
}

// WriteCrashFile writes a crash report for an unrecovered panic and returns its path,
// or "" when the file could not be written (the report then goes to stderr).
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	now := time.Now()
	crashPath := filepath.Join(CrashLogDir, fmt.Sprintf("tenor-crash-%s.log", now.Format("20060102-150405")))

	var report bytes.Buffer
	fmt.Fprintf(&report, "tenor crash report\n")
	fmt.Fprintf(&report, "time:       %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&report, "version:    %s\n", GetFullVersion())
	fmt.Fprintf(&report, "goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&report, "platform:   %s/%s\n\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&report, "panic: %v\n\n", panicVal)
	report.WriteString(stackTrace)
	report.WriteString("\n\nall goroutines:\n")
	report.WriteString(allGoroutineStacks())

	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to create crash directory: %v\n%s", err, report.String())
		return ""
	}
	if err := os.WriteFile(crashPath, report.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n%s", err, report.String())
		return ""
	}
	fmt.Fprintf(os.Stderr, "FATAL: %v (crash report: %s)\n", panicVal, crashPath)
	return crashPath
}

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

// RecoverWithCrashFile writes a crash report and exits with status 1 on panic.
// Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		buf := make([]byte, 8192)
		n := runtime.Stack(buf, false)
		WriteCrashFile(r, string(buf[:n]))
		os.Exit(1)
	}
}
