package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"
)

var (
	mu         sync.Mutex
	out        io.Writer = os.Stdout
	fileWriter io.Writer
)

func SetFile(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	fileWriter = w
}

// SetOutput replaces the console writer. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func write(colored, plain string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(out, colored)
	if fileWriter != nil {
		fmt.Fprintln(fileWriter, plain)
	}
}

func log(color, prefix, msg string) {
	ts := time.Now().Format("15:04:05")
	write(
		fmt.Sprintf("%s%s%s %s%s%s %s", Gray, ts, Reset, color, prefix, Reset, msg),
		fmt.Sprintf("%s %s %s", ts, prefix, msg),
	)
}

func Info(format string, args ...interface{}) {
	log(Cyan, "INFO", fmt.Sprintf(format, args...))
}

func Success(format string, args ...interface{}) {
	log(Green, "OK", fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	log(Yellow, "WARN", fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	log(Red, "ERROR", fmt.Sprintf(format, args...))
}

// Ping logs a tracker event line, e.g. "[weekly_ping] delivered to ...".
func Ping(event, msg string) {
	tagged(Magenta, event, msg)
}

func tagged(color, tag, msg string) {
	ts := time.Now().Format("15:04:05")
	write(
		fmt.Sprintf("%s%s%s %s[%s]%s %s", Gray, ts, Reset, color, tag, Reset, msg),
		fmt.Sprintf("%s [%s] %s", ts, tag, msg),
	)
}

func Fatal(format string, args ...interface{}) {
	log(Red, "FATAL", fmt.Sprintf(format, args...))
	os.Exit(1)
}

type StdLogger struct{}

func (l *StdLogger) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	// Component lines such as "[scheduler] registered ..." keep their tag.
	if strings.HasPrefix(msg, "[") {
		end := strings.Index(msg, "]")
		if end > 1 && !strings.ContainsAny(msg[1:end], " \t") {
			tagged(Blue, msg[1:end], strings.TrimSpace(msg[end+1:]))
			return len(p), nil
		}
	}
	Info("%s", msg)
	return len(p), nil
}

func NewStdLogger() *StdLogger {
	return &StdLogger{}
}
