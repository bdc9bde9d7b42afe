package bicbridge

import (
	"context"
	"log"
	"sync"
	"time"
)

// StimLogEntry is one row of the persisted stim-time log (spec §6): a
// before/after timestamp pair bracketing one StartStimulation call, any
// exception text ("0" when none), and the trigger phase at the time of
// fire.
type StimLogEntry struct {
	Before       int64
	After        int64
	Exception    string
	TriggerPhase float64
}

// StimExecutor is the dedicated worker that actually issues stimulation
// start commands in closed-loop mode (C5). It is created on arming and
// torn down on disarm; a final notify on the stop channel wakes it if it
// is blocked waiting on a fire.
//
// Grounded on BICListener.cpp's triggeredSendStimThread.
type StimExecutor struct {
	implant    ImplantDriver
	controller *StimController
	logQueue   *BoundedQueue[StimLogEntry]

	mu          sync.Mutex
	stimulating bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewStimExecutor builds an executor wired to the given implant,
// controller, and stim-time logging queue (sized by the caller; the engine
// uses EngineConfig.StimLogQueueCapacity, default 1000).
func NewStimExecutor(implant ImplantDriver, controller *StimController, logQueue *BoundedQueue[StimLogEntry]) *StimExecutor {
	return &StimExecutor{
		implant:    implant,
		controller: controller,
		logQueue:   logQueue,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the executor's run loop.
func (e *StimExecutor) Start(ctx context.Context) {
	go e.run(ctx)
}

// Stop signals teardown and blocks until the worker has called
// StopStimulation and exited.
func (e *StimExecutor) Stop() {
	close(e.stopCh)
	<-e.doneCh
}

func (e *StimExecutor) run(ctx context.Context) {
	defer close(e.doneCh)
	for {
		select {
		case phase := <-e.controller.FireChannel():
			e.fire(ctx, phase)
		case <-e.stopCh:
			if err := e.implant.StopStimulation(ctx); err != nil {
				log.Printf("stim executor: stop stimulation: %v", err)
			}
			return
		}
	}
}

// SetStimulating records the vendor's stim-finished latch as forwarded by
// Engine.OnStimulationStateChanged. fire refuses to issue another
// StartStimulation while this is true (spec §5: "¬isStimulating (both)").
func (e *StimExecutor) SetStimulating(active bool) {
	e.mu.Lock()
	e.stimulating = active
	e.mu.Unlock()
}

func (e *StimExecutor) fire(ctx context.Context, triggerPhase float64) {
	e.mu.Lock()
	alreadyStimulating := e.stimulating
	if !alreadyStimulating {
		// Latch until the vendor reports the stimulation has finished.
		e.stimulating = true
	}
	e.mu.Unlock()
	if alreadyStimulating {
		log.Printf("stim executor: fire suppressed: stimulation already active")
		return
	}

	before := time.Now().UnixNano()
	err := e.implant.StartStimulation(ctx)
	after := time.Now().UnixNano()

	exception := "0"
	if err != nil {
		exception = err.Error()
		// No stimulation started, so no stim-finished event will follow.
		e.SetStimulating(false)
	}

	entry := StimLogEntry{Before: before, After: after, Exception: exception, TriggerPhase: triggerPhase}
	if !e.logQueue.Push(entry) {
		log.Printf("WARNING: queue overflow: stim-time log queue")
	}
}
