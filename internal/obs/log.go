package obs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Everything that logs writes
// through it, one JSON object per line on stdout.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = newLineLogger(os.Stdout)
	})
	return logger
}

func newLineLogger(w io.Writer) *log.Logger {
	// No prefix, no flags: timestamps live inside the JSON payload.
	return log.New(w, "", 0)
}

// LogRequest writes one request's fields as a JSON line. A marshal failure
// still produces a line so the request is never silently dropped.
func LogRequest(entry map[string]any) {
	line, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"request log entry not serializable"}`)
		return
	}
	Logger().Println(string(line))
}
