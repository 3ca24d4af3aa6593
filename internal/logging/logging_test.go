package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantWarn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, true},
		{"error", false, false},
		{"bogus", false, true}, // unknown falls back to info
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(tt.level, &buf)

			log.Debug("debug line")
			log.Warn("warn line")

			got := buf.String()
			if strings.Contains(got, "debug line") != tt.wantDebug {
				t.Errorf("debug emitted = %v, want %v", !tt.wantDebug, tt.wantDebug)
			}
			if strings.Contains(got, "warn line") != tt.wantWarn {
				t.Errorf("warn emitted = %v, want %v", !tt.wantWarn, tt.wantWarn)
			}
		})
	}
}
