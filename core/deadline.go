package core

import (
	"time"

	"github.com/signalsfoundry/stride-kernel/timectrl"
)

const (
	// deadlineSafetyMargin is the conservative overshoot factor: scheduling
	// stops once the predicted cost of the remaining strides exceeds the time
	// left by more than 10%. At exactly the margin, work continues.
	deadlineSafetyMargin = 1.1

	// defaultStrideEstimateUS seeds the stride-cost average before any real
	// sample has been measured.
	defaultStrideEstimateUS = 100.0

	// strideCostEMAAlpha is the weight on the newest stride-cost sample.
	strideCostEMAAlpha = 0.1
)

// DeadlineMonitor predicts whether continuing a stride batch would overrun a
// wall-clock deadline. The prediction uses a measured exponential moving
// average of recent stride cost, never an assumed constant. It is consulted
// strictly between strides and only ever stops further scheduling; it never
// interrupts a stride in progress.
type DeadlineMonitor struct {
	clock       timectrl.Clock
	avgStrideUS float64
}

// NewDeadlineMonitor constructs a monitor on the given clock. A nil clock
// falls back to the wall clock.
func NewDeadlineMonitor(clock timectrl.Clock) *DeadlineMonitor {
	if clock == nil {
		clock = timectrl.WallClock{}
	}
	return &DeadlineMonitor{
		clock:       clock,
		avgStrideUS: defaultStrideEstimateUS,
	}
}

// ObserveStride folds one measured stride execution cost into the running
// average.
func (m *DeadlineMonitor) ObserveStride(d time.Duration) {
	sample := float64(d.Microseconds())
	m.avgStrideUS = strideCostEMAAlpha*sample + (1-strideCostEMAAlpha)*m.avgStrideUS
}

// AvgStrideMicros returns the current smoothed stride cost in microseconds.
func (m *DeadlineMonitor) AvgStrideMicros() float64 {
	return m.avgStrideUS
}

// ShouldTerminate reports whether the batch should stop scheduling further
// strides given the deadline and the number of strides still pending.
func (m *DeadlineMonitor) ShouldTerminate(deadline time.Time, remainingStrides int) bool {
	now := m.clock.Now()
	nowMS := float64(now.UnixNano()) / 1e6
	deadlineMS := float64(deadline.UnixNano()) / 1e6
	return CheckEarlyTermination(nowMS, deadlineMS, m.avgStrideUS, remainingStrides)
}

// CheckEarlyTermination is the pure deadline decision: given the current and
// deadline times in milliseconds, the smoothed stride cost in microseconds,
// and the remaining stride count, it returns true when the batch should stop.
//
// Past the deadline it always terminates. Otherwise it terminates only when
// the predicted remaining cost exceeds the time left by more than the safety
// margin; a prediction exactly at the margin continues, favoring finishing
// work over premature cutoff.
func CheckEarlyTermination(nowMS, deadlineMS, avgStrideUS float64, remainingStrides int) bool {
	timeRemainingMS := deadlineMS - nowMS
	if timeRemainingMS <= 0 {
		return true
	}
	predictedMS := avgStrideUS * float64(remainingStrides) / 1000.0
	return predictedMS > timeRemainingMS*deadlineSafetyMargin
}
