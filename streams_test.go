package bicbridge

import "testing"

// TestStreamBatchesNeuralWrites exercises scenario S4: a neural-shaped
// stream with batchSize=100 fed 250 samples emits batches of 100, 100,
// and 50 (the last a partial batch, written once the queue runs empty),
// in counter order.
func TestStreamBatchesNeuralWrites(t *testing.T) {
	writer := &recordingWriter[EnrichedSample]{}
	s := NewStream[EnrichedSample](StreamNeural, writer, nil, 100)

	// Enqueue before starting the writer goroutine so draining is
	// deterministic: the writer only ever sees a queue that is already
	// full of exactly 250 items.
	for i := uint32(0); i < 250; i++ {
		if !s.Enqueue(EnrichedSample{Sample: Sample{Counter: i}}) {
			t.Fatalf("Enqueue(%d) dropped, want accepted (capacity is 1000)", i)
		}
	}

	s.Start()
	s.Stop()

	batches := writer.Batches()
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	wantSizes := []int{100, 100, 50}
	for i, want := range wantSizes {
		if len(batches[i]) != want {
			t.Errorf("batch[%d] size=%d, want %d", i, len(batches[i]), want)
		}
	}

	var prev int64 = -1
	for _, batch := range batches {
		for _, sample := range batch {
			if int64(sample.Counter) <= prev {
				t.Errorf("counters out of order: %d after %d", sample.Counter, prev)
			}
			prev = int64(sample.Counter)
		}
	}
}

// TestStreamTelemetryWritesOnePerPayload checks that non-neural streams
// (batchSize=1) write one message per payload, not batched.
func TestStreamTelemetryWritesOnePerPayload(t *testing.T) {
	writer := &recordingWriter[TelemetryMessage]{}
	s := NewStream[TelemetryMessage](StreamTemperature, writer, nil, 1)

	s.Enqueue(TelemetryMessage{Kind: TelemetryTemperature, Temperature: 36.5})
	s.Enqueue(TelemetryMessage{Kind: TelemetryTemperature, Temperature: 36.6})

	s.Start()
	s.Stop()

	batches := writer.Batches()
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2 (one per payload)", len(batches))
	}
	for _, b := range batches {
		if len(b) != 1 {
			t.Errorf("batch size=%d, want 1", len(b))
		}
	}
}

// TestStreamStopFlushesWithoutDeadlock checks Stop() returns even when
// the queue is empty at the moment of close (no pending writer work).
func TestStreamStopFlushesWithoutDeadlock(t *testing.T) {
	writer := &recordingWriter[TelemetryMessage]{}
	s := NewStream[TelemetryMessage](StreamHumidity, writer, nil, 1)
	s.Start()
	s.Stop()
	if len(writer.Batches()) != 0 {
		t.Errorf("got %d batches on an empty stream, want 0", len(writer.Batches()))
	}
}

// TestStreamEnqueueOverflowDrops checks a telemetry-capacity (100) stream
// drops once full, matching the queue-overflow error-handling design
// (spec §7).
func TestStreamEnqueueOverflowDrops(t *testing.T) {
	writer := &recordingWriter[TelemetryMessage]{}
	s := NewStream[TelemetryMessage](StreamError, writer, nil, 1)
	for i := 0; i < StreamError.QueueCapacity(); i++ {
		if !s.Enqueue(TelemetryMessage{}) {
			t.Fatalf("Enqueue %d dropped before reaching capacity %d", i, StreamError.QueueCapacity())
		}
	}
	if s.Enqueue(TelemetryMessage{}) {
		t.Errorf("Enqueue beyond capacity accepted, want dropped")
	}
}
