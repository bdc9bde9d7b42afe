package bicbridge

import (
	"context"
	"testing"
	"time"
)

// TestWatchdogRetriggersOnInterval checks C6 fires StartStimulation
// repeatedly (at least three times within a second at a 10ms interval),
// and that Stop calls StopStimulation exactly once on teardown.
func TestWatchdogRetriggersOnInterval(t *testing.T) {
	implant := &fakeImplant{}
	logQueue := NewBoundedQueue[StimLogEntry](100)
	wd := NewWatchdog(implant, 10*time.Millisecond, logQueue)
	wd.Start(context.Background())

	deadline := time.After(time.Second)
	for implant.startCount < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d fires after 1s, want at least 3", implant.startCount)
		default:
			implant.finishStim() // simulate the vendor clearing IsStimulating promptly
			time.Sleep(time.Millisecond)
		}
	}
	wd.Stop()

	if implant.stopCount != 1 {
		t.Errorf("implant.stopCount=%d, want 1", implant.stopCount)
	}
}

// TestWatchdogFloorsIntervalAtMinimum checks the 10ms minimum retrigger
// interval (spec §4.6).
func TestWatchdogFloorsIntervalAtMinimum(t *testing.T) {
	logQueue := NewBoundedQueue[StimLogEntry](10)
	wd := NewWatchdog(&fakeImplant{}, time.Millisecond, logQueue)
	if wd.interval != minWatchdogInterval {
		t.Errorf("interval=%v, want floored to %v", wd.interval, minWatchdogInterval)
	}
}

// TestWatchdogWaitsForStimulationToClear checks the watchdog does not
// call StartStimulation again while IsStimulating is still true (the
// canonical polling pattern, spec §9).
func TestWatchdogWaitsForStimulationToClear(t *testing.T) {
	implant := &fakeImplant{}
	logQueue := NewBoundedQueue[StimLogEntry](10)
	wd := NewWatchdog(implant, 10*time.Millisecond, logQueue)
	wd.Start(context.Background())

	// Let it fire once and leave IsStimulating true (don't call finishStim).
	deadline := time.After(500 * time.Millisecond)
	for implant.startCount < 1 {
		select {
		case <-deadline:
			t.Fatal("watchdog never fired")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if implant.startCount != 1 {
		t.Errorf("startCount=%d while still stimulating, want 1 (must poll, not retrigger)", implant.startCount)
	}
	wd.Stop()
}
