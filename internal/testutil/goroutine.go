// Package testutil holds helpers shared by the runtime's tests.
package testutil

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector fails a test when goroutines started during it are
// still running at the end.
type GoroutineLeakDetector struct {
	t             testing.TB
	initialCount  int
	allowedGrowth int
	checkInterval time.Duration
	timeout       time.Duration
}

// NewGoroutineLeakDetector creates a detector and records the current
// goroutine count.
func NewGoroutineLeakDetector(t testing.TB) *GoroutineLeakDetector {
	d := &GoroutineLeakDetector{
		t:             t,
		checkInterval: 20 * time.Millisecond,
		timeout:       2 * time.Second,
	}
	d.initialCount = runtime.NumGoroutine()
	return d
}

// SetAllowedGrowth sets the number of goroutines allowed to outlive the test
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetTimeout sets how long Check waits for goroutines to wind down
func (d *GoroutineLeakDetector) SetTimeout(timeout time.Duration) *GoroutineLeakDetector {
	d.timeout = timeout
	return d
}

// Check polls until the goroutine count is back within bounds, and reports a
// leak with every stack trace if it never gets there.
func (d *GoroutineLeakDetector) Check() {
	d.t.Helper()

	deadline := time.Now().Add(d.timeout)
	count := runtime.NumGoroutine()
	for count-d.initialCount > d.allowedGrowth && time.Now().Before(deadline) {
		time.Sleep(d.checkInterval)
		count = runtime.NumGoroutine()
	}

	leaked := count - d.initialCount
	if leaked > d.allowedGrowth {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		d.t.Errorf("Goroutine leak detected: started with %d, ended with %d (leaked: %d, allowed: %d)\n%s",
			d.initialCount, count, leaked, d.allowedGrowth, buf[:n])
	}
}

// VerifyNone is shorthand for registering a leak check at test cleanup
func VerifyNone(t testing.TB, allowedGrowth int) {
	d := NewGoroutineLeakDetector(t).SetAllowedGrowth(allowedGrowth)
	t.Cleanup(d.Check)
}
