package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("frame %d converted", 7)
	if got != "frame 7 converted" {
		t.Fatalf("custom logger got %q", got)
	}

	got = ""
	SetLogger(nil)
	Logf("frame %d converted", 8)
	if got != "" {
		t.Errorf("no-op logger should not reach previous logger, got %q", got)
	}
}

func TestQuietRestores(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	calls := 0
	SetLogger(func(string, ...interface{}) { calls++ })

	restore := Quiet()
	Logf("muted")
	if calls != 0 {
		t.Fatalf("expected muted logger, got %d calls", calls)
	}

	restore()
	Logf("audible")
	if calls != 1 {
		t.Errorf("expected restored logger to be called once, got %d", calls)
	}
}
