package bicbridge

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/uw-herron-lab/bic-bridge-engine/stimlog"
)

// Engine is the façade (C9): the one exported type clients construct and
// drive. It owns the mode state machine, every per-stream writer pool,
// and the closed-loop/open-loop stimulation drivers, none of which may be
// active at the same time (spec §3 "Mode flags").
type Engine struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	implant ImplantDriver
	cfg     EngineConfig
	mode    Mode

	sensingChannel int
	interpolator   *Interpolator
	dsp            *DSPChain
	controller     *StimController

	neuralStream      *Stream[EnrichedSample]
	temperatureStream *Stream[TelemetryMessage]
	humidityStream    *Stream[TelemetryMessage]
	connectionStream  *Stream[TelemetryMessage]
	errorStream       *Stream[TelemetryMessage]
	powerStream       *Stream[TelemetryMessage]

	stimExecutor *StimExecutor
	watchdog     *Watchdog

	stimLogQueue  *BoundedQueue[StimLogEntry]
	stimLogWriter *stimlog.Writer
	stimLogDone   chan struct{}

	comment string
}

// NewEngine builds an idle Engine and starts its stim-time-logger thread
// (spec §5: one such thread, independent of which stim driver is active).
func NewEngine(cfg EngineConfig) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ctx:            ctx,
		cancel:         cancel,
		cfg:            cfg,
		mode:           ModeIdle,
		sensingChannel: cfg.SensingChannel,
		interpolator:   NewInterpolator(cfg.InterpolationCeiling),
		dsp:            NewDSPChain(DefaultBetaBandB, DefaultBetaBandA, cfg.SampleRateHz),
		controller:     NewStimController(cfg.AmplitudeThreshold, cfg.InitialTriggerPhase, cfg.TargetPhase),
		stimLogQueue:   NewBoundedQueue[StimLogEntry](cfg.StimLogQueueCapacity),
		stimLogWriter:  stimlog.NewWriter(stimLogFileName(time.Now())),
		stimLogDone:    make(chan struct{}),
	}
	go e.runStimLogger()
	return e
}

func stimLogFileName(t time.Time) string {
	return fmt.Sprintf("stimTimeLog_%s.csv", t.Format("01022006_150405"))
}

// runStimLogger drains stimLogQueue into the CSV writer until the queue
// is closed, lazily creating the file on the first record (mirrors the
// off writer's CreateFile-on-first-use behavior).
func (e *Engine) runStimLogger() {
	defer close(e.stimLogDone)
	for {
		entry, ok := e.stimLogQueue.Pop()
		if !ok {
			e.stimLogWriter.Close()
			return
		}
		if !e.stimLogWriter.HeaderWritten() {
			if err := e.stimLogWriter.CreateFile(); err != nil {
				log.Printf("stim log: create file: %v", err)
				continue
			}
			if err := e.stimLogWriter.WriteHeader(); err != nil {
				log.Printf("stim log: write header: %v", err)
			}
		}
		if err := e.stimLogWriter.WriteRecord(entry.Before, entry.After, entry.Exception, entry.TriggerPhase); err != nil {
			log.Printf("stim log: write record: %v", err)
		}
		e.stimLogWriter.Flush()
	}
}

// AttachDevice stores a non-owning reference to the vendor implant and
// registers the engine as its listener (spec §9 "weak back-reference":
// lifetime belongs to the session; Detach must be called before the
// session tears the device down).
func (e *Engine) AttachDevice(implant ImplantDriver) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if implant == nil {
		return fmt.Errorf("bicbridge: attach device: nil implant")
	}
	e.implant = implant
	implant.RegisterListener(e)
	return nil
}

// Detach invalidates the engine's reference to the implant. Must be
// called before the owning session deletes the device.
func (e *Engine) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.implant = nil
}

// Shutdown tears down every active stream and stim driver and stops the
// stim-time-logger thread. Idempotent.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	neural, temp, hum, conn, errs, power := e.neuralStream, e.temperatureStream, e.humidityStream, e.connectionStream, e.errorStream, e.powerStream
	executor, watchdog := e.stimExecutor, e.watchdog
	e.neuralStream, e.temperatureStream, e.humidityStream, e.connectionStream, e.errorStream, e.powerStream = nil, nil, nil, nil, nil, nil
	e.stimExecutor, e.watchdog = nil, nil
	e.mode = ModeIdle
	e.mu.Unlock()

	if neural != nil {
		neural.Stop()
	}
	if temp != nil {
		temp.Stop()
	}
	if hum != nil {
		hum.Stop()
	}
	if conn != nil {
		conn.Stop()
	}
	if errs != nil {
		errs.Stop()
	}
	if power != nil {
		power.Stop()
	}
	if executor != nil {
		executor.Stop()
	}
	if watchdog != nil {
		watchdog.Stop()
	}

	e.stimLogQueue.Close()
	<-e.stimLogDone
	e.cancel()
}

// IsTriggeringStimulation reports whether either automated stim driver is
// currently armed (spec §4.9).
func (e *Engine) IsTriggeringStimulation() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode == ModeClosedLoop || e.mode == ModeOpenLoop
}

// Mode returns the engine's current stimulation mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// toggleStream is the generic enable/disable body shared by every
// EnableXStream operation (spec §9 "Per-stream state bundle": one Stream<T>
// implementation, parameterized, instead of six near-duplicate blocks).
func toggleStream[T any](enable bool, slot **Stream[T], build func() *Stream[T]) error {
	if enable {
		if *slot != nil {
			return nil // double-enable: no-op
		}
		s := build()
		s.Start()
		*slot = s
		return nil
	}
	if *slot == nil {
		return nil // double-disable: no-op
	}
	s := *slot
	*slot = nil
	s.Stop()
	return nil
}

// neuralUpdateAdapter wraps an RPCWriter[NeuralUpdate] so the generic
// Stream[EnrichedSample] writer pool can write to it: each drained batch
// is framed as the single NeuralUpdate message the RPC contract names
// (spec §6), rather than writing raw enriched samples.
type neuralUpdateAdapter struct {
	inner RPCWriter[NeuralUpdate]
}

func (a neuralUpdateAdapter) Write(batch []EnrichedSample) error {
	return a.inner.Write([]NeuralUpdate{{Samples: batch}})
}

// EnableNeuralStream arms or disarms the neural data stream. writer
// receives one NeuralUpdate per flushed batch (spec §3, §4.8).
func (e *Engine) EnableNeuralStream(enable bool, writer RPCWriter[NeuralUpdate], publisher *ZMQPublisher[EnrichedSample]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toggleStream(enable, &e.neuralStream, func() *Stream[EnrichedSample] {
		return NewStream(StreamNeural, neuralUpdateAdapter{inner: writer}, publisher, e.cfg.NeuralBatchSize)
	})
}

// EnableTemperatureStream arms or disarms the temperature telemetry stream.
func (e *Engine) EnableTemperatureStream(enable bool, writer RPCWriter[TelemetryMessage], publisher *ZMQPublisher[TelemetryMessage]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toggleStream(enable, &e.temperatureStream, func() *Stream[TelemetryMessage] {
		return NewStream(StreamTemperature, writer, publisher, 1)
	})
}

// EnableHumidityStream arms or disarms the humidity telemetry stream.
func (e *Engine) EnableHumidityStream(enable bool, writer RPCWriter[TelemetryMessage], publisher *ZMQPublisher[TelemetryMessage]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toggleStream(enable, &e.humidityStream, func() *Stream[TelemetryMessage] {
		return NewStream(StreamHumidity, writer, publisher, 1)
	})
}

// EnableConnectionStream arms or disarms the connection-state telemetry
// stream.
func (e *Engine) EnableConnectionStream(enable bool, writer RPCWriter[TelemetryMessage], publisher *ZMQPublisher[TelemetryMessage]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toggleStream(enable, &e.connectionStream, func() *Stream[TelemetryMessage] {
		return NewStream(StreamConnection, writer, publisher, 1)
	})
}

// EnableErrorStream arms or disarms the error telemetry stream.
func (e *Engine) EnableErrorStream(enable bool, writer RPCWriter[TelemetryMessage], publisher *ZMQPublisher[TelemetryMessage]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toggleStream(enable, &e.errorStream, func() *Stream[TelemetryMessage] {
		return NewStream(StreamError, writer, publisher, 1)
	})
}

// EnablePowerStream arms or disarms the power-rail telemetry stream.
func (e *Engine) EnablePowerStream(enable bool, writer RPCWriter[TelemetryMessage], publisher *ZMQPublisher[TelemetryMessage]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toggleStream(enable, &e.powerStream, func() *Stream[TelemetryMessage] {
		return NewStream(StreamPower, writer, publisher, 1)
	})
}

// EnableClosedLoop arms or disarms the phase-locked stim controller.
// Refused with a "mode conflict" error if open-loop or external
// stimulation is currently active (spec §4.9, scenario S5).
func (e *Engine) EnableClosedLoop(enable bool, sensingChannel int, b, a [5]float64, amplitudeThreshold, initialTriggerPhase, targetPhase float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !enable {
		if e.mode != ModeClosedLoop {
			return nil
		}
		e.stimExecutor.Stop()
		e.stimExecutor = nil
		e.mode = ModeIdle
		return nil
	}

	if e.mode == ModeClosedLoop {
		return nil
	}
	if e.mode == ModeOpenLoop || e.mode == ModeExternal {
		return fmt.Errorf("bicbridge: mode conflict: cannot enable closed-loop while %s is active", e.mode)
	}

	e.sensingChannel = sensingChannel
	e.dsp = NewDSPChain(b, a, e.cfg.SampleRateHz)
	e.controller.AmplitudeThreshold = amplitudeThreshold
	e.controller.SetPhases(initialTriggerPhase, targetPhase)
	e.controller.Reset()
	e.stimExecutor = NewStimExecutor(e.implant, e.controller, e.stimLogQueue)
	e.stimExecutor.Start(e.ctx)
	e.mode = ModeClosedLoop
	return nil
}

// EnableOpenLoop arms or disarms the watchdog-retriggered stim driver.
// Refused with a "mode conflict" error if closed-loop or external
// stimulation is currently active.
func (e *Engine) EnableOpenLoop(enable bool, watchdogInterval time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !enable {
		if e.mode != ModeOpenLoop {
			return nil
		}
		e.watchdog.Stop()
		e.watchdog = nil
		e.mode = ModeIdle
		return nil
	}

	if e.mode == ModeOpenLoop {
		return nil
	}
	if e.mode == ModeClosedLoop || e.mode == ModeExternal {
		return fmt.Errorf("bicbridge: mode conflict: cannot enable open-loop while %s is active", e.mode)
	}

	e.watchdog = NewWatchdog(e.implant, watchdogInterval, e.stimLogQueue)
	e.watchdog.Start(e.ctx)
	e.mode = ModeOpenLoop
	return nil
}

// SetComment appends a timestamped line to comment.txt alongside the stim
// log, for recording free-form experiment notes. Not part of the
// distilled core; grounded in SourceControl.WriteComment.
func (e *Engine) SetComment(comment string) error {
	if len(comment) == 0 {
		return nil
	}
	e.mu.Lock()
	e.comment = comment
	e.mu.Unlock()

	f, err := os.OpenFile("comment.txt", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s", time.Now().Format(time.RFC3339), comment)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err = f.WriteString(line)
	return err
}

// DumpStatus logs a debug snapshot of the engine's mode and stream
// enablement, in the teacher's spew.Sdump style.
func (e *Engine) DumpStatus() {
	e.mu.Lock()
	defer e.mu.Unlock()
	log.Printf("engine status: %s", spew.Sdump(struct {
		Mode               Mode
		NeuralEnabled      bool
		TemperatureEnabled bool
		HumidityEnabled    bool
		ConnectionEnabled  bool
		ErrorEnabled       bool
		PowerEnabled       bool
	}{
		Mode:               e.mode,
		NeuralEnabled:      e.neuralStream != nil,
		TemperatureEnabled: e.temperatureStream != nil,
		HumidityEnabled:    e.humidityStream != nil,
		ConnectionEnabled:  e.connectionStream != nil,
		ErrorEnabled:       e.errorStream != nil,
		PowerEnabled:       e.powerStream != nil,
	}))
}
