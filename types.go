package bicbridge

import "fmt"

// MaxChannels is the maximum number of sensing channels the implant can
// report in a single Sample (spec: N <= 32).
const MaxChannels = 32

// Sample is one measurement tick as delivered by the vendor SDK callback.
type Sample struct {
	Counter           uint32                 // monotonically-growing measurement counter, wraps on overflow
	NumMeasurements   int                    // N <= MaxChannels
	Channels          [MaxChannels]float64   // channel readings, only [0:NumMeasurements) valid
	SupplyVoltage     float64
	Connected         bool
	StimulationID     uint16 // 0 means "no stim started on this tick"
	StimulationActive bool
	InputTriggerHigh  bool
	ReceivedAt        int64 // server-assigned reception timestamp, ns since epoch
}

// EnrichedSample is a Sample augmented with DSP/controller-derived fields.
type EnrichedSample struct {
	Sample

	Filtered        float64 // output of the IIR band-pass on the sensing channel
	PreFilter       float64 // DC-blocked value, pre-Hampel
	HampelFiltered  float64 // Hampel-filtered value
	Phase           float64 // estimated phase in degrees, [0, 360)
	IsInterpolated  bool
	IsValidTarget   bool
	TriggerPhase    float64 // adaptive trigger phase at the time this sample was processed
}

// Mode is the engine's single stimulation-mode state, replacing the three
// mutually-exclusive booleans (closedLoopEnabled, openLoopEnabled,
// externallyStimulating) with one explicit state so the "at most one active"
// invariant is structural.
type Mode int

const (
	ModeIdle Mode = iota
	ModeClosedLoop
	ModeOpenLoop
	ModeExternal
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeClosedLoop:
		return "closed-loop"
	case ModeOpenLoop:
		return "open-loop"
	case ModeExternal:
		return "external"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// StreamKind identifies one of the six multiplexed telemetry/data streams.
type StreamKind int

const (
	StreamNeural StreamKind = iota
	StreamTemperature
	StreamHumidity
	StreamConnection
	StreamError
	StreamPower
)

func (k StreamKind) String() string {
	switch k {
	case StreamNeural:
		return "neural"
	case StreamTemperature:
		return "temperature"
	case StreamHumidity:
		return "humidity"
	case StreamConnection:
		return "connection"
	case StreamError:
		return "error"
	case StreamPower:
		return "power"
	default:
		return fmt.Sprintf("stream(%d)", int(k))
	}
}

// QueueCapacity returns the bounded-queue capacity for a stream kind
// (spec §3: neural = 1000, others = 100).
func (k StreamKind) QueueCapacity() int {
	if k == StreamNeural {
		return 1000
	}
	return 100
}

// PowerParameter distinguishes the three power-rail telemetry readings.
type PowerParameter int

const (
	PowerVoltage PowerParameter = iota
	PowerCoilCurrent
	PowerControl
)

func (p PowerParameter) String() string {
	switch p {
	case PowerVoltage:
		return "Voltage"
	case PowerCoilCurrent:
		return "CoilCurrent"
	case PowerControl:
		return "Control"
	default:
		return fmt.Sprintf("power(%d)", int(p))
	}
}

// TelemetryKind tags which field(s) of a TelemetryMessage are populated.
type TelemetryKind int

const (
	TelemetryTemperature TelemetryKind = iota
	TelemetryHumidity
	TelemetryConnection
	TelemetryPower
	TelemetryError
)

// TelemetryMessage is the tagged union described in spec §3. Only the
// fields relevant to Kind are meaningful.
type TelemetryMessage struct {
	Kind      TelemetryKind
	Timestamp int64 // ns since epoch

	Temperature float64
	Humidity    float64

	ConnectionType string
	Connected      bool

	PowerParameter PowerParameter
	PowerValue     float64
	PowerUnits     string

	ErrorMessage string
}

// NeuralUpdate batches enriched samples for amortized RPC writes (§4.8).
type NeuralUpdate struct {
	Samples []EnrichedSample
}
