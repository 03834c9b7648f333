package obs

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestLogRequestWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := Logger()
	l.SetOutput(&buf)
	defer l.SetOutput(os.Stdout)

	LogRequest(map[string]any{"method": "GET", "path": "/healthz", "status": 200})

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("not a JSON line: %q: %v", line, err)
	}
	if entry["path"] != "/healthz" {
		t.Fatalf("path = %v", entry["path"])
	}
}

func TestLogRequestUnserializableEntry(t *testing.T) {
	var buf bytes.Buffer
	l := Logger()
	l.SetOutput(&buf)
	defer l.SetOutput(os.Stdout)

	LogRequest(map[string]any{"bad": make(chan int)})

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "not serializable") {
		t.Fatalf("expected fallback line, got %q", line)
	}
}
