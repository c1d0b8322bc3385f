package logger

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestEncodeEntryBasicFormat(t *testing.T) {
	enc := newMinimalEncoder()
	ent := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Date(2026, 3, 4, 13, 4, 35, 0, time.UTC),
		LoggerName: "bus",
		Message:    "Signal emitted",
	}

	buf, err := enc.EncodeEntry(ent, []zapcore.Field{
		zap.String("signal_id", "sig_8a1"),
		zap.Float64("confidence", 0.9),
	})
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "13:04:35") {
		t.Errorf("missing timestamp in %q", out)
	}
	if !strings.Contains(out, "Signal emitted") {
		t.Errorf("missing message in %q", out)
	}
	if !strings.Contains(out, "sig_8a1") {
		t.Errorf("missing signal id field in %q", out)
	}
	if !strings.Contains(out, "0.90") {
		t.Errorf("missing formatted confidence in %q", out)
	}
	if strings.Contains(out, "INFO") {
		t.Errorf("info level should be suppressed, got %q", out)
	}
}

func TestEncodeEntryWarnLevelShown(t *testing.T) {
	enc := newMinimalEncoder()
	ent := zapcore.Entry{
		Level:   zapcore.WarnLevel,
		Time:    time.Now(),
		Message: "Cycle detected during cascade",
	}

	buf, err := enc.EncodeEntry(ent, nil)
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	if !strings.Contains(buf.String(), "WARN") {
		t.Errorf("warn level marker missing in %q", buf.String())
	}
}

func TestAbbreviateName(t *testing.T) {
	if got := abbreviateName("signal.fusion"); got != "s.fusion" {
		t.Errorf("abbreviateName(signal.fusion) = %q, want s.fusion", got)
	}
	if got := abbreviateName("bus"); got != "bus" {
		t.Errorf("abbreviateName(bus) = %q, want bus", got)
	}
}
