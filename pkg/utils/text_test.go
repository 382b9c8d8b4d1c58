package utils

import (
	"math"
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
	// "é" is two bytes; cutting at 2 would split it
	if got := Truncate("aéb", 2); got != "a..." {
		t.Errorf("multi-byte cut: got %q", got)
	}
}

func TestNormalizeL2(t *testing.T) {
	x := []float64{3, 4}
	NormalizeL2(x)
	if math.Abs(x[0]-0.6) > 1e-12 || math.Abs(x[1]-0.8) > 1e-12 {
		t.Errorf("NormalizeL2 = %v", x)
	}
	zero := []float64{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
