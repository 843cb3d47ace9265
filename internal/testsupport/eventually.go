// Package testsupport holds small polling helpers shared by the core
// package's tests, in the style of the teacher project's own
// waitUntil.
package testsupport

import (
	"testing"
	"time"
)

// Eventually polls check every 10ms until it returns true or d elapses,
// returning whether it ever saw true.
func Eventually(t *testing.T, d time.Duration, check func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if check() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return check()
}
