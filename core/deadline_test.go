package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/stride-kernel/timectrl"
)

func TestCheckEarlyTerminationMarginBoundary(t *testing.T) {
	// avg stride 100µs, deadline 10ms out: margin allows up to 11ms of
	// predicted work, i.e. 110 strides.
	cases := []struct {
		name      string
		remaining int
		want      bool
	}{
		{"well under budget", 100, false},
		{"exactly at margin", 110, false},
		{"just past margin", 111, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckEarlyTermination(0.0, 10.0, 100.0, tc.remaining)
			if got != tc.want {
				t.Fatalf("CheckEarlyTermination(remaining=%d) = %v, want %v", tc.remaining, got, tc.want)
			}
		})
	}
}

func TestCheckEarlyTerminationPastDeadline(t *testing.T) {
	if !CheckEarlyTermination(11.0, 10.0, 100.0, 0) {
		t.Fatalf("past deadline with zero remaining strides, want terminate")
	}
	if !CheckEarlyTermination(10.0, 10.0, 100.0, 1) {
		t.Fatalf("exactly at deadline, want terminate")
	}
}

func TestCheckEarlyTerminationNothingRemaining(t *testing.T) {
	if CheckEarlyTermination(0.0, 10.0, 100.0, 0) {
		t.Fatalf("zero remaining strides before deadline, want continue")
	}
}

func TestDeadlineMonitorUsesInjectedClock(t *testing.T) {
	start := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := timectrl.NewManualClock(start)
	m := NewDeadlineMonitor(clock)

	deadline := start.Add(10 * time.Millisecond)
	// Seeded average is 100µs: 50 remaining strides predict 5ms, fine.
	if m.ShouldTerminate(deadline, 50) {
		t.Fatalf("ShouldTerminate with ample budget = true, want false")
	}

	clock.Advance(11 * time.Millisecond)
	if !m.ShouldTerminate(deadline, 1) {
		t.Fatalf("ShouldTerminate past deadline = false, want true")
	}
}

func TestDeadlineMonitorObserveStrideMovesAverage(t *testing.T) {
	m := NewDeadlineMonitor(timectrl.NewManualClock(time.Now()))
	before := m.AvgStrideMicros()

	// Feed consistently expensive strides; the EMA must climb toward them.
	for i := 0; i < 50; i++ {
		m.ObserveStride(2 * time.Millisecond)
	}
	after := m.AvgStrideMicros()
	if after <= before {
		t.Fatalf("average did not rise: %v -> %v", before, after)
	}
	if after > 2000.0 {
		t.Fatalf("average overshot the sample value: %v", after)
	}
}

func TestDeadlineMonitorTerminatesUnderMeasuredPressure(t *testing.T) {
	start := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := timectrl.NewManualClock(start)
	m := NewDeadlineMonitor(clock)

	for i := 0; i < 200; i++ {
		m.ObserveStride(1 * time.Millisecond)
	}

	// ~1000µs per stride, 100 strides pending, 10ms left: predicted 100ms.
	deadline := start.Add(10 * time.Millisecond)
	if !m.ShouldTerminate(deadline, 100) {
		t.Fatalf("ShouldTerminate under heavy measured cost = false, want true")
	}
}
