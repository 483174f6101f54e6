package application

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_FormatsLine(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "info", "audits")

	log.Info("ledger committed", "audit", "a-1", "events", 3)

	line := buf.String()
	fields := strings.Split(strings.TrimRight(line, "\n"), "\t")
	if len(fields) != 6 {
		t.Fatalf("fields = %d, want 6 (line %q)", len(fields), line)
	}
	if fields[1] != "INFO" {
		t.Errorf("level = %q, want %q", fields[1], "INFO")
	}
	if fields[2] != "audits" {
		t.Errorf("component = %q, want %q", fields[2], "audits")
	}
	if fields[3] != "ledger committed" {
		t.Errorf("message = %q, want %q", fields[3], "ledger committed")
	}
	if fields[4] != "audit=a-1" || fields[5] != "events=3" {
		t.Errorf("attrs = %q, want audit=a-1 events=3", fields[4:])
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "test")

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("lines = %d, want 1 (output %q)", got, buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"WARN", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"verbose", "INFO"},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in).String(); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
