package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pumpkit/internal/tools/builtin"
)

type fakeInvoker struct {
	mu    sync.Mutex
	calls []string
	reply func(text string) string
}

func (f *fakeInvoker) Invoke(_ context.Context, name, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != builtin.CreateTokenName {
		return "Unknown capability " + name
	}
	f.calls = append(f.calls, text)
	return f.reply(text)
}

func okReply(string) string {
	return `Token created successfully: {"id":"abc"}`
}

func TestRunPipedInvokesEachLine(t *testing.T) {
	inv := &fakeInvoker{reply: okReply}
	a := &app{registry: inv}
	in := strings.NewReader("name A ticker AA description first\n\n  name B ticker BB description second  \n")
	var out bytes.Buffer

	if err := a.runPiped(context.Background(), in, &out); err != nil {
		t.Fatalf("runPiped returned error: %v", err)
	}
	if len(inv.calls) != 2 {
		t.Fatalf("expected 2 invocations, got %d: %v", len(inv.calls), inv.calls)
	}
	if inv.calls[1] != "name B ticker BB description second" {
		t.Fatalf("expected trimmed line, got %q", inv.calls[1])
	}
	if strings.Count(out.String(), "Token created successfully") != 2 {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRunPipedStopsAtExit(t *testing.T) {
	inv := &fakeInvoker{reply: okReply}
	a := &app{registry: inv}
	in := strings.NewReader("name A ticker AA description one\nquit\nname B ticker BB description two\n")

	if err := a.runPiped(context.Background(), in, &bytes.Buffer{}); err != nil {
		t.Fatalf("runPiped returned error: %v", err)
	}
	if len(inv.calls) != 1 {
		t.Fatalf("expected input after quit to be ignored, got %v", inv.calls)
	}
}

func TestRunPipedReportsFailures(t *testing.T) {
	inv := &fakeInvoker{reply: func(text string) string {
		if strings.Contains(text, "bad") {
			return "Error 500: server error"
		}
		return okReply(text)
	}}
	a := &app{registry: inv}
	var out bytes.Buffer

	err := a.runPiped(context.Background(), strings.NewReader("bad one\ngood one\n"), &out)
	if !errors.Is(err, errLaunchFailed) {
		t.Fatalf("expected errLaunchFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "1 failed") {
		t.Fatalf("expected failure count in %q", err.Error())
	}
	if !strings.Contains(out.String(), "Error 500: server error") {
		t.Fatalf("expected failure text in output, got %q", out.String())
	}
	if len(inv.calls) != 2 {
		t.Fatalf("a failing line must not stop the loop, got %v", inv.calls)
	}
}

func TestRunOnce(t *testing.T) {
	inv := &fakeInvoker{reply: okReply}
	a := &app{registry: inv}
	var out bytes.Buffer
	if err := a.runOnce(context.Background(), &out, "name A ticker AA description x"); err != nil {
		t.Fatalf("runOnce returned error: %v", err)
	}
	if !strings.Contains(out.String(), `{"id":"abc"}`) {
		t.Fatalf("unexpected output %q", out.String())
	}

	inv.reply = func(string) string { return "Failed to create token (authorize): failed to create task: key denied" }
	if err := a.runOnce(context.Background(), &bytes.Buffer{}, "anything"); !errors.Is(err, errLaunchFailed) {
		t.Fatalf("expected errLaunchFailed, got %v", err)
	}
}

func TestOverridesFromFlagsOnlyChanged(t *testing.T) {
	a := newApp()
	root := newRootCommand(a)
	if err := root.PersistentFlags().Parse([]string{"--api-key", "CAP-flag", "--max-attempts", "5", "--poll-interval", "2s", "--metrics"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	o := overridesFromFlags(a.flags)
	if o.CapSolverAPIKey == nil || *o.CapSolverAPIKey != "CAP-flag" {
		t.Fatalf("expected api key override, got %v", o.CapSolverAPIKey)
	}
	if o.MaxPollAttempts == nil || *o.MaxPollAttempts != 5 {
		t.Fatalf("expected max attempts override, got %v", o.MaxPollAttempts)
	}
	if o.PollInterval == nil || *o.PollInterval != 2*time.Second {
		t.Fatalf("expected poll interval override, got %v", o.PollInterval)
	}
	if o.MetricsEnabled == nil || !*o.MetricsEnabled {
		t.Fatalf("expected metrics override")
	}
	if o.ProxyURL != nil || o.LogLevel != nil || o.RequireImage != nil {
		t.Fatalf("unset flags must not override config: %+v", o)
	}
}

func TestIsExit(t *testing.T) {
	for _, input := range []string{"exit", "quit", "q", "QUIT"} {
		if !isExit(input) {
			t.Fatalf("expected %q to exit", input)
		}
	}
	if isExit("name quit ticker Q description q") {
		t.Fatalf("a command mentioning quit is not an exit")
	}
}
