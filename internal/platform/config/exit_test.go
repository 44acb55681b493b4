package config

import (
	"bytes"
	"testing"
)

func TestExitfWritesMessageAndExits(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	prevOut, prevExit := stderr, exit
	stderr = &buf
	exit = func(c int) { code = c }
	t.Cleanup(func() { stderr, exit = prevOut, prevExit })

	Exitf("attendance: %s", "missing ATTENDMARK_TOKEN_SECRET")

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if got := buf.String(); got != "attendance: missing ATTENDMARK_TOKEN_SECRET\n" {
		t.Fatalf("stderr = %q", got)
	}
}
