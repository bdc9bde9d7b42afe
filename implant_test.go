package bicbridge

import (
	"context"
	"sync"
)

// fakeImplant is a minimal in-memory ImplantDriver used across the test
// suite in place of the vendor SDK binding (spec §6: the SDK is consumed
// as an opaque collaborator).
type fakeImplant struct {
	mu          sync.Mutex
	stimulating bool
	startCount  int
	stopCount   int
	startErr    error
	listener    ImplantListener
}

func (f *fakeImplant) StartMeasurement(ctx context.Context, referenceChannelSet []int) error { return nil }
func (f *fakeImplant) StopMeasurement(ctx context.Context) error                             { return nil }

func (f *fakeImplant) StartStimulation(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCount++
	if f.startErr != nil {
		return f.startErr
	}
	f.stimulating = true
	return nil
}

func (f *fakeImplant) StopStimulation(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCount++
	f.stimulating = false
	return nil
}

func (f *fakeImplant) IsStimulating() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stimulating
}

func (f *fakeImplant) GetImpedance(ctx context.Context, channel int) (float64, error) { return 0, nil }
func (f *fakeImplant) GetTemperature(ctx context.Context) (float64, error)            { return 0, nil }
func (f *fakeImplant) GetHumidity(ctx context.Context) (float64, error)               { return 0, nil }
func (f *fakeImplant) SetImplantPower(ctx context.Context, on bool) error             { return nil }

func (f *fakeImplant) RegisterListener(l ImplantListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

// finishStim flips the stimulating flag back to false, simulating the
// vendor clearing IsStimulating after a pulse completes, and used by the
// watchdog test to unblock its polling loop without a real implant.
func (f *fakeImplant) finishStim() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stimulating = false
}

// recordingWriter captures every batch passed to Write, for assertions
// about batching/ordering (spec §4.8, scenario S4).
type recordingWriter[T any] struct {
	mu      sync.Mutex
	batches [][]T
}

func (w *recordingWriter[T]) Write(batch []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := append([]T(nil), batch...)
	w.batches = append(w.batches, cp)
	return nil
}

func (w *recordingWriter[T]) Batches() [][]T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]T(nil), w.batches...)
}
