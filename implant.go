package bicbridge

import "context"

// ImplantDriver is the vendor SDK surface the engine consumes as an opaque
// collaborator (spec §6). It is not implemented by this package; a real
// binding wraps the native BIC SDK. All operations are blocking and may
// return an error; StartStimulation/StopStimulation may additionally
// surface vendor exceptions as errors.
type ImplantDriver interface {
	StartMeasurement(ctx context.Context, referenceChannelSet []int) error
	StopMeasurement(ctx context.Context) error

	StartStimulation(ctx context.Context) error
	StopStimulation(ctx context.Context) error
	IsStimulating() bool

	GetImpedance(ctx context.Context, channel int) (float64, error)
	GetTemperature(ctx context.Context) (float64, error)
	GetHumidity(ctx context.Context) (float64, error)

	SetImplantPower(ctx context.Context, on bool) error

	// RegisterListener wires in the ingest orchestrator (C7). Only one
	// listener is supported; callbacks run on the driver's own thread.
	RegisterListener(l ImplantListener)
}

// ImplantListener receives vendor callbacks (spec §6). Implementations
// must copy or fully consume every borrowed slice before returning: the
// driver may reuse or free the backing memory immediately after the call
// (spec §9 "Callback/thread ownership").
type ImplantListener interface {
	// OnData delivers one batch of raw measurement ticks. batch is
	// borrowed; do not retain it past the call.
	OnData(batch []Sample)

	OnTemperatureChanged(celsius float64)
	OnHumidityChanged(relativeHumidity float64)
	OnImplantVoltageChanged(volts float64)
	OnPrimaryCoilCurrentChanged(amps float64)
	OnImplantControlValueChanged(value float64)
	OnConnectionStateChanged(connectionType string, connected bool)
	OnError(message string)

	// OnDataProcessingTooSlow fires when the driver detects the listener
	// is falling behind; the orchestrator escalates this to a critical
	// error in addition to its own console warning.
	OnDataProcessingTooSlow()

	// OnStimulationStateChanged is the stim-finished latch: the vendor
	// emits this after StartStimulation returns once the implant reports
	// stimulation has actually concluded. The executor must observe a
	// false transition here before firing again (spec §9).
	OnStimulationStateChanged(active bool)
}
