package clock

import "testing"

func TestInstanceIsASingleton(t *testing.T) {
	a := Instance()
	b := Instance()
	if a != b {
		t.Fatal("expected Instance() to return the same process-wide singleton")
	}
}

func TestNowTicksIsMonotonicallyNonDecreasing(t *testing.T) {
	c := Instance()
	prev := c.NowTicks()
	for i := 0; i < 1000; i++ {
		next := c.NowTicks()
		if next < prev {
			t.Fatalf("NowTicks went backwards: %d -> %d", prev, next)
		}
		prev = next
	}
}

func TestTicksToHnsIsExactIntegerDivision(t *testing.T) {
	c := Instance()
	cases := []struct {
		ticks int64
		want  int64
	}{
		{0, 0},
		{100, 1},
		{1000, 10},
		{999, 9},
		{-1000, -10},
	}
	for _, tc := range cases {
		if got := c.TicksToHns(tc.ticks); got != tc.want {
			t.Fatalf("TicksToHns(%d) = %d, want %d", tc.ticks, got, tc.want)
		}
	}
}
