package bicbridge

import (
	"log"

	"github.com/davecgh/go-spew/spew"
)

// StimController runs the phase-locked trigger predicate and the onset
// bookkeeping that adapts the trigger phase and guards against
// self-triggering (C4). One instance lives for the life of a closed-loop
// arming; Reset is called each time closed-loop is (re-)armed.
//
// Grounded on BICListener.cpp's updateTriggerPhase/detectSelfTriggering and
// the onset-bookkeeping block inlined in onData.
type StimController struct {
	AmplitudeThreshold float64

	adaptiveTriggerPhase float64
	targetPhase          float64

	selfTriggerLockout bool
	prevStimActive     bool

	stimOnsetHistory  *History[bool]   // length 15, artifact-blanking window
	stimSampleStamps  *History[uint32] // length 4, most recent onset first

	fireCh chan float64
}

// NewStimController builds a controller with the given amplitude threshold
// and initial/target trigger phases (spec §4.9 EnableClosedLoop params).
func NewStimController(amplitudeThreshold, initialTriggerPhase, targetPhase float64) *StimController {
	return &StimController{
		AmplitudeThreshold:   amplitudeThreshold,
		adaptiveTriggerPhase: initialTriggerPhase,
		targetPhase:          targetPhase,
		stimOnsetHistory:     NewHistory[bool](15),
		stimSampleStamps:     NewHistory[uint32](4),
		fireCh:               make(chan float64, 1),
	}
}

// SetPhases overrides the initial trigger phase and target phase, used
// when (re-)arming closed-loop with new parameters.
func (sc *StimController) SetPhases(initialTriggerPhase, targetPhase float64) {
	sc.adaptiveTriggerPhase = initialTriggerPhase
	sc.targetPhase = targetPhase
}

// Reset clears all onset/lockout state, as done on (re-)arming.
func (sc *StimController) Reset() {
	sc.stimOnsetHistory.Reset()
	sc.stimSampleStamps.Reset()
	sc.selfTriggerLockout = false
	sc.prevStimActive = false
}

// FireChannel is consumed by the stim trigger executor (C5); a value
// arrives each time the trigger predicate fires.
func (sc *StimController) FireChannel() <-chan float64 { return sc.fireCh }

// AdaptiveTriggerPhase returns the current trigger phase, annotated onto
// each enriched sample.
func (sc *StimController) AdaptiveTriggerPhase() float64 { return sc.adaptiveTriggerPhase }

// StimOnsetSum sums the artifact-blanking window, consumed by the DSP
// chain's DC blocker on the *next* tick (spec §5: "an onset bookkeeping
// update strictly precedes DSP evaluation of the next sample").
func (sc *StimController) StimOnsetSum() int {
	n := 0
	for _, v := range sc.stimOnsetHistory.Slice() {
		if v {
			n++
		}
	}
	return n
}

// Evaluate runs the trigger predicate for one tick and, on a fire, signals
// the stim executor. closedLoopEnabled gates the predicate so a disarmed
// controller never fires even if it is still receiving ticks during
// teardown.
func (sc *StimController) Evaluate(dsp *DSPChain, closedLoopEnabled bool) (isValidTarget bool) {
	if sc.adaptiveTriggerPhase <= 0 || sc.adaptiveTriggerPhase > 360 {
		sc.adaptiveTriggerPhase = 45
	}

	fire := !sc.selfTriggerLockout && closedLoopEnabled &&
		dsp.Phase(0) > sc.adaptiveTriggerPhase && dsp.Phase(2) < sc.adaptiveTriggerPhase &&
		dsp.BPFront() > sc.AmplitudeThreshold
	if !fire {
		return false
	}

	select {
	case sc.fireCh <- sc.adaptiveTriggerPhase:
	default:
		// Executor hasn't drained the previous fire yet; one notify is
		// all the contract (§4.1-style single notify) promises.
	}
	return true
}

// OnsetBookkeeping updates the onset history, the adaptive trigger phase,
// and the self-triggering lockout after a tick's DSP/controller
// evaluation (spec §4.4). phaseAtOnset is the phase of the sample on
// which stimulationActive first went true.
func (sc *StimController) OnsetBookkeeping(stimulationActive bool, counter uint32, phaseAtOnset float64, dsp *DSPChain) {
	if stimulationActive && !sc.prevStimActive {
		sc.stimOnsetHistory.PushFront(true)
		sc.updateTriggerPhase(phaseAtOnset)
		sc.prevStimActive = true
		sc.stimSampleStamps.PushFront(counter)
	} else {
		sc.stimOnsetHistory.PushFront(false)
	}

	if sc.selfTriggerLockout {
		if counter-sc.stimSampleStamps.At(0) > 150 {
			sc.selfTriggerLockout = false
		}
	} else {
		sc.detectSelfTriggering(dsp.SigFreqFront())
	}

	if !stimulationActive && sc.prevStimActive {
		sc.prevStimActive = false
	}
}

// updateTriggerPhase nudges adaptiveTriggerPhase toward targetPhase,
// clamping to (1, 170] (reset to 25 on out-of-range).
func (sc *StimController) updateTriggerPhase(prevStimPhase float64) {
	sc.adaptiveTriggerPhase -= 0.1 * (prevStimPhase - sc.targetPhase)
	if sc.adaptiveTriggerPhase <= 1 || sc.adaptiveTriggerPhase > 170 {
		sc.adaptiveTriggerPhase = 25
	}
}

// detectSelfTriggering flags lockout when every consecutive pair of the
// four most recent onset stamps falls within selfTrigThresh samples of
// each other. sigFreqFront may be 0 at startup, making the threshold
// infinite and so locking out immediately; the zero case is not guarded.
func (sc *StimController) detectSelfTriggering(sigFreqFront float64) {
	selfTrigThresh := 1.25 * (1 / sigFreqFront) * 1000
	stamps := sc.stimSampleStamps.Slice()

	tight := 0
	for i := 0; i < len(stamps)-1; i++ {
		if float64(stamps[i]-stamps[i+1]) <= selfTrigThresh {
			tight++
		}
	}
	wasLockedOut := sc.selfTriggerLockout
	sc.selfTriggerLockout = tight >= len(stamps)-1
	if sc.selfTriggerLockout && !wasLockedOut {
		log.Printf("self-triggering lockout engaged: %s", spew.Sdump(struct {
			Stamps    []uint32
			Threshold float64
		}{Stamps: append([]uint32(nil), stamps...), Threshold: selfTrigThresh}))
	}
}
