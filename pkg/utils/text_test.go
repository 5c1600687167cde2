package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("読み取り結果", 2); got != "読み..." {
		t.Errorf("multi-byte truncate: got %q", got)
	}
}

func TestRoundTo(t *testing.T) {
	cases := []struct {
		x      float64
		places int
		want   float64
	}{
		{72.44, 1, 72.4},
		{72.46, 1, 72.5},
		{65, 1, 65},
		{3.14159, 2, 3.14},
		{3.7, 0, 4},
		{3.14159, -1, 3.14159},
	}
	for _, tc := range cases {
		if got := RoundTo(tc.x, tc.places); got != tc.want {
			t.Errorf("RoundTo(%v, %d) = %v, want %v", tc.x, tc.places, got, tc.want)
		}
	}
}
