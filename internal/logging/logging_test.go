package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want logrus.Level
	}{
		{in: "debug", want: logrus.DebugLevel},
		{in: " WARN ", want: logrus.WarnLevel},
		{in: "warning", want: logrus.WarnLevel},
		{in: "error", want: logrus.ErrorLevel},
		{in: "", want: logrus.InfoLevel},
		{in: "verbose", want: logrus.InfoLevel},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			l := New(Options{Out: &bytes.Buffer{}, Level: tt.in})
			if got := l.GetLevel(); got != tt.want {
				t.Fatalf("level=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestJSONComponentOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(Options{Out: &buf, JSON: true})
	l.Component("writer").Printf("stage=write inserted=%d", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %q (%v)", buf.String(), err)
	}
	if entry["component"] != "writer" || entry["msg"] != "stage=write inserted=3" {
		t.Fatalf("entry=%v", entry)
	}
}

func TestLevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(Options{Out: &buf, Level: "warn"})
	l.Printf("hidden")
	l.Warnf("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("output=%q", buf.String())
	}
}
