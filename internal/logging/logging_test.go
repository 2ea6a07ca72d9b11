package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_DefaultLevelSuppressesDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(Options{Writer: &buf})
	l.Debug("hidden")
	l.Info("shown", "region", "Orders")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record leaked at info level: %q", out)
	}
	if !strings.Contains(out, "region=Orders") {
		t.Fatalf("expected text attrs in output, got %q", out)
	}
}

func TestNew_VerboseJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(Options{Writer: &buf, Verbose: true, JSON: true})
	l.Debug("fallback", "region", "Orders")

	if !strings.Contains(buf.String(), `"region":"Orders"`) {
		t.Fatalf("expected JSON debug record, got %q", buf.String())
	}
}

func TestOrDiscard(t *testing.T) {
	t.Parallel()

	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) must return a usable logger")
	}
	OrDiscard(nil).Error("dropped")
}
