package bicbridge

import (
	"log"
	"time"
)

// OnData is the vendor callback entry point (C7). batch is borrowed
// memory: every Sample is copied by value before this function returns,
// satisfying the vendor contract (spec §6, §9 "Callback/thread
// ownership").
func (e *Engine) OnData(batch []Sample) {
	receivedAt := time.Now().UnixNano()

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range batch {
		s := batch[i]
		s.ReceivedAt = receivedAt
		for _, enriched := range e.interpolator.Feed(s) {
			e.processSample(enriched)
		}
	}
	// Writer threads wake themselves via the queue's condition variable
	// inside Enqueue; nothing further to signal once the batch is drained.
}

// processSample runs one enriched sample through the DSP chain and the
// stim controller, then fans it into the neural queue (spec §4.7 step 3).
func (e *Engine) processSample(es EnrichedSample) {
	stimOnsetSum := e.controller.StimOnsetSum()
	filtered, dcOut, hampelOut, phase := e.dsp.Step(es.Channels[e.sensingChannel], es.Counter, stimOnsetSum)
	es.Filtered = filtered
	es.PreFilter = dcOut
	es.HampelFiltered = hampelOut
	es.Phase = phase

	es.IsValidTarget = e.controller.Evaluate(e.dsp, e.mode == ModeClosedLoop)
	es.TriggerPhase = e.controller.AdaptiveTriggerPhase()

	e.controller.OnsetBookkeeping(es.StimulationActive, es.Counter, es.Phase, e.dsp)

	if e.neuralStream != nil {
		if !e.neuralStream.Enqueue(es) {
			log.Printf("WARNING: queue overflow: neural stream")
		}
	}
}

// OnTemperatureChanged fans a temperature reading into the temperature
// stream if enabled.
func (e *Engine) OnTemperatureChanged(celsius float64) {
	e.enqueueTelemetry(&e.temperatureStream, TelemetryMessage{
		Kind: TelemetryTemperature, Timestamp: time.Now().UnixNano(), Temperature: celsius,
	}, "temperature stream")
}

// OnHumidityChanged fans a humidity reading into the humidity stream if
// enabled.
func (e *Engine) OnHumidityChanged(relativeHumidity float64) {
	e.enqueueTelemetry(&e.humidityStream, TelemetryMessage{
		Kind: TelemetryHumidity, Timestamp: time.Now().UnixNano(), Humidity: relativeHumidity,
	}, "humidity stream")
}

// OnImplantVoltageChanged fans a supply-voltage reading into the power
// stream if enabled.
func (e *Engine) OnImplantVoltageChanged(volts float64) {
	e.enqueueTelemetry(&e.powerStream, TelemetryMessage{
		Kind: TelemetryPower, Timestamp: time.Now().UnixNano(),
		PowerParameter: PowerVoltage, PowerValue: volts, PowerUnits: "V",
	}, "power stream")
}

// OnPrimaryCoilCurrentChanged fans a coil-current reading into the power
// stream if enabled.
func (e *Engine) OnPrimaryCoilCurrentChanged(amps float64) {
	e.enqueueTelemetry(&e.powerStream, TelemetryMessage{
		Kind: TelemetryPower, Timestamp: time.Now().UnixNano(),
		PowerParameter: PowerCoilCurrent, PowerValue: amps, PowerUnits: "A",
	}, "power stream")
}

// OnImplantControlValueChanged fans a control-value reading into the
// power stream if enabled.
func (e *Engine) OnImplantControlValueChanged(value float64) {
	e.enqueueTelemetry(&e.powerStream, TelemetryMessage{
		Kind: TelemetryPower, Timestamp: time.Now().UnixNano(),
		PowerParameter: PowerControl, PowerValue: value,
	}, "power stream")
}

// OnConnectionStateChanged fans a connectivity change into the connection
// stream if enabled.
func (e *Engine) OnConnectionStateChanged(connectionType string, connected bool) {
	e.enqueueTelemetry(&e.connectionStream, TelemetryMessage{
		Kind: TelemetryConnection, Timestamp: time.Now().UnixNano(),
		ConnectionType: connectionType, Connected: connected,
	}, "connection stream")
}

// OnError fans a vendor error message into the error stream if enabled,
// and always logs it (spec §7).
func (e *Engine) OnError(message string) {
	log.Printf("implant error: %s", message)
	e.enqueueTelemetry(&e.errorStream, TelemetryMessage{
		Kind: TelemetryError, Timestamp: time.Now().UnixNano(), ErrorMessage: message,
	}, "error stream")
}

// OnDataProcessingTooSlow is a critical warning emitted both to the
// console and, if enabled, the error stream (spec §4.7, §7).
func (e *Engine) OnDataProcessingTooSlow() {
	const message = "data processing too slow: ingest orchestrator is falling behind the implant"
	log.Printf("CRITICAL: %s", message)
	e.enqueueTelemetry(&e.errorStream, TelemetryMessage{
		Kind: TelemetryError, Timestamp: time.Now().UnixNano(), ErrorMessage: message,
	}, "error stream")
}

// OnStimulationStateChanged forwards the vendor's stim-finished latch into
// the closed-loop executor, if one is currently armed (spec §9). The
// executor refuses to re-fire while this latch reports active, the C5
// analogue of the watchdog's synchronous IsStimulating poll for C6.
func (e *Engine) OnStimulationStateChanged(active bool) {
	e.mu.Lock()
	executor := e.stimExecutor
	e.mu.Unlock()
	if executor != nil {
		executor.SetStimulating(active)
	}
}

func (e *Engine) enqueueTelemetry(slot **Stream[TelemetryMessage], msg TelemetryMessage, name string) {
	e.mu.Lock()
	stream := *slot
	e.mu.Unlock()
	if stream == nil {
		return
	}
	if !stream.Enqueue(msg) {
		log.Printf("WARNING: queue overflow: %s", name)
	}
}
