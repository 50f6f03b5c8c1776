package main

import "testing"

func TestTimedRuns(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{10, 10},
		{1, 1},
		{0, 1},
		{-5, 1},
	}
	for _, tt := range tests {
		if got := timedRuns(tt.in); got != tt.want {
			t.Errorf("timedRuns(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestShortPath(t *testing.T) {
	if got := shortPath("data/docs/faq.txt"); got != "faq.txt" {
		t.Errorf("shortPath = %q", got)
	}
	if got := shortPath("faq.txt"); got != "faq.txt" {
		t.Errorf("shortPath = %q", got)
	}
}
