package bicbridge

import "log"

// Interpolator fills gaps in the measurement-counter sequence with linear
// interpolation, subject to a configurable gap ceiling (C2). It is fed
// single raw ticks and emits a run of EnrichedSample shells (DSP/controller
// fields still zero) in ascending counter order: any synthesized samples
// bridging a gap, followed always by the real sample just received.
//
// Grounded on BICListener.cpp's onData gap-handling block: interpolated
// samples reuse the previous reception timestamp (interpolation does not
// invent time), while the real sample gets its own freshly-stamped time.
type Interpolator struct {
	ceiling       uint32
	haveLast      bool
	lastCounter   uint32
	lastTimestamp int64
	latestData    [MaxChannels]float64
}

// NewInterpolator creates an Interpolator with the given gap ceiling.
func NewInterpolator(ceiling uint32) *Interpolator {
	return &Interpolator{ceiling: ceiling}
}

// Feed processes one raw tick, returning one or more EnrichedSample
// shells ready for the DSP chain (C3). s.ReceivedAt must already be set
// by the caller (stamped once per callback batch, per §4.7).
func (ip *Interpolator) Feed(s Sample) []EnrichedSample {
	var out []EnrichedSample

	if !ip.haveLast {
		ip.haveLast = true
		ip.lastCounter = s.Counter
		ip.lastTimestamp = s.ReceivedAt
		ip.latestData = s.Channels
		return append(out, EnrichedSample{Sample: s})
	}

	switch {
	case s.Counter == ip.lastCounter+1:
		// No gap.

	case s.Counter == ip.lastCounter:
		log.Printf("WARNING: repeated counter value %d in sensing packets", s.Counter)

	default:
		gap := s.Counter - ip.lastCounter - 1 // uint32 wraparound arithmetic
		if gap <= ip.ceiling {
			var slope [MaxChannels]float64
			for i := 0; i < s.NumMeasurements; i++ {
				slope[i] = (s.Channels[i] - ip.latestData[i]) / float64(gap+1)
			}
			for n := uint32(1); n <= gap; n++ {
				syn := Sample{
					Counter:           ip.lastCounter + n,
					NumMeasurements:   s.NumMeasurements,
					SupplyVoltage:     s.SupplyVoltage,
					Connected:         s.Connected,
					StimulationID:     s.StimulationID,
					StimulationActive: s.StimulationActive,
					InputTriggerHigh:  s.InputTriggerHigh,
					ReceivedAt:        ip.lastTimestamp,
				}
				for i := 0; i < s.NumMeasurements; i++ {
					syn.Channels[i] = ip.latestData[i] + slope[i]*float64(n)
				}
				out = append(out, EnrichedSample{Sample: syn, IsInterpolated: true})
			}
		} else {
			log.Printf("WARNING: exceeded interpolation ceiling (%d > %d); data loss indicated by dropout in sample count", gap, ip.ceiling)
		}
	}

	ip.lastCounter = s.Counter
	ip.lastTimestamp = s.ReceivedAt
	ip.latestData = s.Channels
	out = append(out, EnrichedSample{Sample: s})
	return out
}
