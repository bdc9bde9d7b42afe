package bicbridge

import (
	"log"

	czmq "github.com/zeromq/goczmq"
)

// RPCWriter is the downstream data-contract surface the engine writes
// batches to (spec §6: "only the data contracts and streaming semantics
// matter", the RPC method dispatch itself is out of scope).
type RPCWriter[T any] interface {
	Write(batch []T) error
}

// ZMQPublisher fans a stream out over a ZeroMQ PUB socket in addition to
// the RPC write, mirroring the source's DataPublisher: any non-nil
// publisher on a Stream is used on every batch, right after the RPC write
// on the same writer goroutine.
//
// Grounded on publish_data.go's DataPublisher/messageRecords pattern.
type ZMQPublisher[T any] struct {
	channeler *czmq.Channeler
	encode    func(T) [][]byte
}

// NewZMQPublisher binds a PUB socket at hostname (e.g. "tcp://*:5563") and
// uses encode to frame each item of a batch before sending.
func NewZMQPublisher[T any](hostname string, encode func(T) [][]byte) *ZMQPublisher[T] {
	return &ZMQPublisher[T]{channeler: czmq.NewPubChanneler(hostname), encode: encode}
}

func (p *ZMQPublisher[T]) publish(batch []T) {
	for _, item := range batch {
		p.channeler.SendChan <- p.encode(item)
	}
}

// Close destroys the underlying ZeroMQ socket.
func (p *ZMQPublisher[T]) Close() {
	p.channeler.Destroy()
}

// Stream is the per-kind writer-pool unit (spec §9 design note "Per-stream
// state bundle": parameterize a single Stream<T> over the payload type
// instead of a flat struct of per-kind fields). One Stream is instantiated
// per enabled telemetry kind plus one for neural.
type Stream[T any] struct {
	Kind      StreamKind
	queue     *BoundedQueue[T]
	writer    RPCWriter[T]
	publisher *ZMQPublisher[T]
	batchSize int

	doneCh chan struct{}
}

// NewStream builds a Stream bound to a fresh bounded queue sized per
// StreamKind.QueueCapacity, a required RPC writer, and an optional ZeroMQ
// fanout publisher (nil to skip). batchSize must be >= 1; telemetry kinds
// use 1 (one message per payload), neural typically uses 100 (spec §4.8).
func NewStream[T any](kind StreamKind, writer RPCWriter[T], publisher *ZMQPublisher[T], batchSize int) *Stream[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Stream[T]{
		Kind:      kind,
		queue:     NewBoundedQueue[T](kind.QueueCapacity()),
		writer:    writer,
		publisher: publisher,
		batchSize: batchSize,
		doneCh:    make(chan struct{}),
	}
}

// Enqueue is called only by the ingest orchestrator. It returns false if
// the message was dropped (queue full or stream disabled); the caller
// logs the overflow warning naming the stream.
func (s *Stream[T]) Enqueue(msg T) bool {
	return s.queue.Push(msg)
}

// Start launches the writer thread.
func (s *Stream[T]) Start() {
	go s.run()
}

// Stop closes the queue (waking the writer, which drains and exits) and
// blocks until the writer thread has returned.
func (s *Stream[T]) Stop() {
	s.queue.Close()
	<-s.doneCh
	if s.publisher != nil {
		s.publisher.Close()
	}
}

func (s *Stream[T]) run() {
	defer close(s.doneCh)
	for {
		first, ok := s.queue.Pop()
		if !ok {
			return
		}
		batch := make([]T, 1, s.batchSize)
		batch[0] = first
		for len(batch) < s.batchSize {
			v, ok := s.queue.TryPop()
			if !ok {
				break
			}
			batch = append(batch, v)
		}

		if err := s.writer.Write(batch); err != nil {
			log.Printf("%s stream: write failed, continuing: %v", s.Kind, err)
		}
		if s.publisher != nil {
			s.publisher.publish(batch)
		}
	}
}
