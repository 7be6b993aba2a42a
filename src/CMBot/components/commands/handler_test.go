package commands

import (
	"strings"
	"testing"
	"time"
)

func TestParseID(t *testing.T) {
	cases := []struct {
		args []string
		idx  int
		want uint64
		ok   bool
	}{
		{[]string{"12"}, 0, 12, true},
		{[]string{"review", "7"}, 1, 7, true},
		{[]string{"0"}, 0, 0, false},
		{[]string{"-3"}, 0, 0, false},
		{[]string{"abc"}, 0, 0, false},
		{[]string{}, 0, 0, false},
		{[]string{"5"}, 2, 0, false},
	}
	for _, c := range cases {
		id, ok := parseID(c.args, c.idx)
		if id != c.want || ok != c.ok {
			t.Errorf("parseID(%v, %d) = (%d, %v), want (%d, %v)", c.args, c.idx, id, ok, c.want, c.ok)
		}
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("short", 10); got != "short" {
		t.Errorf("snippet left short text alone: %q", got)
	}
	if got := snippet("line one\nline two", 40); strings.Contains(got, "\n") {
		t.Errorf("snippet kept newline: %q", got)
	}
	got := snippet("a long piece of text that keeps going", 10)
	if got != "a long pie..." {
		t.Errorf("snippet truncation: %q", got)
	}
	// Multi-byte input must be cut on rune boundaries.
	got = snippet(strings.Repeat("д", 20), 5)
	if got != strings.Repeat("д", 5)+"..." {
		t.Errorf("snippet on multi-byte text: %q", got)
	}
}

func TestHandlerTableCoversCommandSurface(t *testing.T) {
	h := NewHandler(Config{})
	for _, name := range []string{
		"setchannel", "getchannel", "setstyle",
		"addblock", "blocks", "removeblock",
		"addchannel", "channels", "removechannel",
		"scan", "review", "postnow", "schedule", "skipmedia",
	} {
		if _, ok := h.table[name]; !ok {
			t.Errorf("command %q not in dispatch table", name)
		}
	}
}

func TestHasStyle(t *testing.T) {
	h := NewHandler(Config{Styles: []string{"default", "formal"}})
	if !h.hasStyle("formal") {
		t.Errorf("configured style rejected")
	}
	if h.hasStyle("sarcastic") {
		t.Errorf("unknown style accepted")
	}
	if h.hasStyle("") {
		t.Errorf("empty style accepted")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(time.Hour)

	if !rl.CanUse("op1") {
		t.Fatalf("first use denied")
	}
	if rl.CanUse("op1") {
		t.Fatalf("second use within window allowed")
	}
	if rl.TimeUntilNext("op1") <= 0 {
		t.Fatalf("expected a positive cooldown")
	}

	// Limits are per user.
	if !rl.CanUse("op2") {
		t.Fatalf("unrelated user denied")
	}
	if rl.TimeUntilNext("op3") != 0 {
		t.Fatalf("unused id reported a cooldown")
	}
}
