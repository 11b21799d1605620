package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("SALESPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("SALESPIPE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("value %q: expected %v, got %v", tt.value, tt.want, got)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 30 * time.Minute},
		{"45m", 45 * time.Minute},
		{"soon", 30 * time.Minute},
		{"-5m", 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("SALESPIPE_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("SALESPIPE_TEST_DURATION", 30*time.Minute); got != tt.want {
			t.Errorf("value %q: expected %v, got %v", tt.value, tt.want, got)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("SALESPIPE_TEST_INT", "12")
	if got := ParseIntEnv("SALESPIPE_TEST_INT", 3); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
	t.Setenv("SALESPIPE_TEST_INT", "twelve")
	if got := ParseIntEnv("SALESPIPE_TEST_INT", 3); got != 3 {
		t.Errorf("expected default 3, got %d", got)
	}
}
