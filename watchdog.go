package bicbridge

import (
	"context"
	"log"
	"time"
)

const minWatchdogInterval = 10 * time.Millisecond

// Watchdog is the open-loop stimulation driver (C6): it retriggers on a
// fixed interval rather than on an estimated phase. Mutually exclusive
// with StimExecutor at the engine level.
//
// Grounded on BICListener.cpp's openLoopStimLoopThread.
type Watchdog struct {
	implant  ImplantDriver
	interval time.Duration
	logQueue *BoundedQueue[StimLogEntry]

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatchdog builds a watchdog with the given retrigger interval, floored
// at minWatchdogInterval (spec §4.6).
func NewWatchdog(implant ImplantDriver, interval time.Duration, logQueue *BoundedQueue[StimLogEntry]) *Watchdog {
	if interval < minWatchdogInterval {
		interval = minWatchdogInterval
	}
	return &Watchdog{
		implant:  implant,
		interval: interval,
		logQueue: logQueue,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the watchdog's run loop.
func (w *Watchdog) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals teardown and blocks until the worker has called
// StopStimulation and exited.
func (w *Watchdog) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		for w.implant.IsStimulating() {
			select {
			case <-w.stopCh:
				w.teardown(ctx)
				return
			case <-time.After(time.Millisecond):
			}
		}

		before := time.Now().UnixNano()
		err := w.implant.StartStimulation(ctx)
		after := time.Now().UnixNano()

		exception := "0"
		if err != nil {
			exception = err.Error()
			log.Printf("open-loop watchdog: start stimulation: %v", err)
		}
		if !w.logQueue.Push(StimLogEntry{Before: before, After: after, Exception: exception}) {
			log.Printf("WARNING: queue overflow: stim-time log queue")
		}

		select {
		case <-w.stopCh:
			w.teardown(ctx)
			return
		case <-time.After(w.interval):
		}
	}
}

func (w *Watchdog) teardown(ctx context.Context) {
	if err := w.implant.StopStimulation(ctx); err != nil {
		log.Printf("open-loop watchdog: stop stimulation: %v", err)
	}
}
