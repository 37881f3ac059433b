package app

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestCalculateBackoff(t *testing.T) {
	floor := time.Second
	ceiling := 30 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 1 * time.Second},
		{"negative failures", -1, 1 * time.Second},
		{"one failure", 1, 2 * time.Second},
		{"two failures", 2, 4 * time.Second},
		{"four failures", 4, 16 * time.Second},
		{"five failures capped", 5, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 100, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, floor, ceiling)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d) = %v, want %v", tt.failures, got, tt.want)
			}
		})
	}
}

func TestBackoff_FailAndReset(t *testing.T) {
	b := NewBackoff(0, 0)

	want := []time.Duration{1, 2, 4, 8, 16, 32, 64, 128, 256, 300, 300}
	for i, w := range want {
		if got := b.Fail(); got != w*time.Second {
			t.Fatalf("Fail() #%d = %v, want %v", i+1, got, w*time.Second)
		}
	}
	if b.Failures() != len(want) {
		t.Fatalf("Failures() = %d, want %d", b.Failures(), len(want))
	}

	b.Reset()
	if got := b.Interval(); got != time.Second {
		t.Fatalf("Interval() after Reset = %v, want 1s", got)
	}
}

// TestBackoff_Bounds checks interval == min(floor*2^n, ceiling) for any n.
func TestBackoff_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		floor := time.Duration(rapid.IntRange(1, 5000).Draw(t, "floorMs")) * time.Millisecond
		ceiling := floor * time.Duration(rapid.IntRange(1, 1000).Draw(t, "ceilingFactor"))
		n := rapid.IntRange(0, 200).Draw(t, "failures")

		b := NewBackoff(floor, ceiling)
		for i := 0; i < n; i++ {
			b.Fail()
		}

		want := ceiling
		if n <= 10 { // ceiling is at most floor*1000
			if exp := floor << n; exp < ceiling {
				want = exp
			}
		}
		if got := b.Interval(); got != want {
			t.Fatalf("Interval() after %d failures = %v, want %v", n, got, want)
		}
		if got := b.Interval(); got > ceiling || got < floor {
			t.Fatalf("Interval() = %v outside [%v, %v]", got, floor, ceiling)
		}

		b.Reset()
		if got := b.Interval(); got != floor {
			t.Fatalf("Interval() after Reset = %v, want %v", got, floor)
		}
	})
}
