package main

import (
	"strings"
	"testing"
)

func TestRunNoArgs(t *testing.T) {
	if code := run([]string{"raftkv"}); code != 1 {
		t.Errorf("run with no args = %d, want 1", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"raftkv", "bogus"}); code != 1 {
		t.Errorf("run unknown = %d, want 1", code)
	}
}

func TestRunHelp(t *testing.T) {
	for _, arg := range []string{"help", "-h", "--help"} {
		if code := run([]string{"raftkv", arg}); code != 0 {
			t.Errorf("run %s = %d, want 0", arg, code)
		}
	}
}

func TestRunVersion(t *testing.T) {
	if code := run([]string{"raftkv", "version"}); code != 0 {
		t.Errorf("run version = %d, want 0", code)
	}
}

func TestPrintUsage(t *testing.T) {
	var b strings.Builder
	printUsage(&b)
	out := b.String()
	for _, cmd := range []string{"serve", "get", "set", "del", "status", "version"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("usage missing command %q", cmd)
		}
	}
}
