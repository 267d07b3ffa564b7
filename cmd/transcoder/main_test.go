package main

import "testing"

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	want := map[string]bool{"serve": false, "reconcile": false, "queue": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestQueueCommandRegistersLsAndShow(t *testing.T) {
	var envFile, logLevel string
	queueCmd := newQueueCommand(&envFile, &logLevel)
	want := map[string]bool{"ls": false, "show <id>": false}
	for _, c := range queueCmd.Commands() {
		if _, ok := want[c.Use]; ok {
			want[c.Use] = true
		}
	}
	for use, found := range want {
		if !found {
			t.Errorf("expected queue subcommand %q to be registered", use)
		}
	}
}
