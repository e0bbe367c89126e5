package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLogLinesUseServiceSchema(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: renameCoreKeys})
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("service", "ecmstaked")}))

	logger.Warn("pool capacity low", "poolId", "genesis")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatal("missing timestamp key")
	}
	if got := line["severity"]; got != "WARN" {
		t.Fatalf("severity = %v, want WARN", got)
	}
	if got := line["message"]; got != "pool capacity low" {
		t.Fatalf("message = %v", got)
	}
	if got := line["service"]; got != "ecmstaked" {
		t.Fatalf("service = %v", got)
	}
	if got := line["poolId"]; got != "genesis" {
		t.Fatalf("poolId = %v", got)
	}
}
