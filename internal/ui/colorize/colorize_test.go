package colorize

import (
	"strings"
	"testing"
)

func TestColorizer_Disabled(t *testing.T) {
	var zero *Colorizer
	for _, c := range []*Colorizer{zero, New(false)} {
		if c.Enabled() {
			t.Fatal("colorizer enabled")
		}
		if got := c.Instruction(0x400000, "mov rax, qword ptr [rip+0x13b8]"); got != "0x400000: mov rax, qword ptr [rip+0x13b8]" {
			t.Errorf("Instruction = %q", got)
		}
	}
}

func TestColorizer_Env(t *testing.T) {
	t.Setenv(EnvNoColor, "1")
	if New(true).Enabled() {
		t.Error("colour enabled with " + EnvNoColor)
	}
}

func TestColorizer_Enabled(t *testing.T) {
	t.Setenv(EnvNoColor, "")
	c := New(true)
	if !c.Enabled() {
		t.Skip("no assembly lexer")
	}
	const text = "lea rsi, [rbx+rax*8]"
	got := c.Instruction(0x400007, text)
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("no escape sequences in %q", got)
	}
	if plain := StripANSI(got); plain != "0x400007: "+text {
		t.Errorf("StripANSI = %q", plain)
	}
}

func TestStripANSI(t *testing.T) {
	if got := StripANSI("\x1b[38;2;1;2;3mrax\x1b[0m, 1"); got != "rax, 1" {
		t.Errorf("StripANSI = %q", got)
	}
}
