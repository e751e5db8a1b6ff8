package tgui

import "testing"

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hell…"},
		{"hello", 0, ""},
		{"héllo", 2, "hé…"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestEsc(t *testing.T) {
	t.Parallel()
	if got := Esc(`<b> & "q"`); got == `<b> & "q"` {
		t.Fatalf("Esc did not escape: %q", got)
	}
	if got := B("a<b"); got != "<b>a&lt;b</b>" {
		t.Fatalf("B = %q", got)
	}
}
