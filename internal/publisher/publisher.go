package publisher

import (
	"context"
	"log"
	"sync"
	"time"

	"signalcore/internal/metrics"
	"signalcore/internal/model"
)

// pendingWrite is a buffered emission waiting for the circuit to close.
type pendingWrite struct {
	event model.Event
}

// Publisher wraps a Writer with a circuit breaker, implementing
// model.Emitter so the pipeline can call Emit without knowing it is
// talking to Redis. During circuit-open state, emissions are buffered
// locally (bounded) and flushed in order once the circuit closes.
//
// Adapted from the teacher's store/redis BufferedWriter: same buffer-and-
// flush shape, generalised from two hardcoded write types (candle_1s,
// tf_candle) to the full model.Event sum type.
type Publisher struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context
	m      *metrics.Metrics

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int
}

// NewPublisher wraps w with a circuit breaker that opens after
// maxFailures consecutive XADD failures and probes again after
// resetTimeout. m may be nil (metrics become no-ops).
func NewPublisher(ctx context.Context, w *Writer, maxFailures int, resetTimeout time.Duration, maxBufferSize int, m *metrics.Metrics) *Publisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	cb := NewCircuitBreaker(maxFailures, resetTimeout)
	p := &Publisher{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		m:      m,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	cb.OnStateChange = func(from, to State) {
		if m != nil {
			m.RedisCircuitBreakerState.Set(float64(to))
			if to == StateOpen {
				m.RedisCircuitBreakerTrips.Inc()
			}
		}
		if to == StateClosed {
			go p.flush()
		}
	}

	return p
}

// Emit implements model.Emitter. While the breaker is closed or probing,
// the XADD runs inline, so the caller waits for Redis; while it is open,
// the event goes to the bounded buffer instead and is not retried inline.
func (p *Publisher) Emit(e model.Event) {
	start := time.Now()
	err := p.cb.Execute(func() error {
		return p.writer.writeEvent(p.ctx, e)
	})
	if p.m != nil {
		p.m.RedisWriteDur.Observe(time.Since(start).Seconds())
	}

	if err == ErrCircuitOpen {
		p.bufferEvent(e)
		return
	}
	if err != nil {
		log.Printf("[publisher] write error: %v", err)
	}
}

func (p *Publisher) bufferEvent(e model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, pendingWrite{event: e})

	if p.m != nil {
		p.m.RedisBufferedWrites.Inc()
	}
}

func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]pendingWrite, 0, 256)
	p.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		if err := p.writer.writeEvent(p.ctx, pw.event); err == nil {
			flushed++
		}
	}
	log.Printf("[publisher] flushed %d buffered emissions", flushed)
}

// PendingCount returns the number of emissions waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Close releases the underlying Redis client.
func (p *Publisher) Close() error {
	return p.writer.client.Close()
}
