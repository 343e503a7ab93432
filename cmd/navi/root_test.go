package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmdHasSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	want := []string{"serve", "stop", "status", "sessions", "decisions", "events"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCmdVersion(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "navi ") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestStopWithoutTerminalRequiresForce(t *testing.T) {
	t.Parallel()

	// confirmStop must refuse when stdin is not a TTY.
	stop := newStopCmd()
	var out bytes.Buffer
	stop.SetOut(&out)
	if confirmStop(stop) {
		t.Error("confirmStop must return false without a terminal")
	}
	if !strings.Contains(out.String(), "--force") {
		t.Errorf("missing hint: %q", out.String())
	}
}
