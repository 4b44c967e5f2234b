package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := NewRootCommand(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("binderctl %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestValueRoundTrip(t *testing.T) {
	for _, format := range []string{formatArchive, formatMsgpack} {
		t.Run(format, func(t *testing.T) {
			encoded := execute(t, "", "value", "encode", "-f", format, `{"name": "kit", "n": 3}`)
			decoded := execute(t, encoded, "value", "decode", "-f", format, "--json")
			if !strings.Contains(decoded, `"name": "kit"`) || !strings.Contains(decoded, `"n": 3`) {
				t.Errorf("decoded = %s", decoded)
			}
		})
	}
}

func TestValueDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad hex", []string{"value", "decode", "zz"}},
		{"truncated archive", []string{"value", "decode", "0102"}},
		{"unknown format", []string{"value", "decode", "-f", "cbor", "00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCommand(context.Background())
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDemo(t *testing.T) {
	out := execute(t, "", "demo", "-n", "3")
	for _, want := range []string{
		"connected to binderkit.demo.counter over loopback",
		"add 3 -> 6",
		"ticket -> 1",
		"obituary for",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestDemo_UnixSocket(t *testing.T) {
	t.Setenv("BINDERKIT_TRANSPORT", "unix")
	t.Setenv("BINDERKIT_ADDRESS", t.TempDir()+"/demo.sock")
	out := execute(t, "", "demo", "-n", "2")
	if !strings.Contains(out, "over unix") || !strings.Contains(out, "obituary for") {
		t.Errorf("output:\n%s", out)
	}
}

func TestLeaks(t *testing.T) {
	out := execute(t, "", "leaks", "-n", "5", "--leak", "2")
	if !strings.Contains(out, "took 5 tickets, kept 2") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.Contains(out, "live objects") {
		t.Errorf("report missing:\n%s", out)
	}
}
