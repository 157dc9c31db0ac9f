package game

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize    = 1024                   // Pending events before Emit drops
	MaxEventsPerSec    = 10000                  // Global rate limit
	BatchFlushSize     = 64                     // Events per batch write
	BatchFlushInterval = 100 * time.Millisecond // How often to flush
)

// EventLogStats reports what the log accepted, wrote and dropped.
type EventLogStats struct {
	Emitted uint64 `json:"emitted"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

// EventLog is a bounded, rate-limited JSON Lines writer. Emit never blocks
// the game loop: when the buffer is full or the rate is exceeded the event
// is dropped and counted.
type EventLog struct {
	events  chan Event
	limiter *rate.Limiter

	out    *bufio.Writer
	closer io.Closer
	enc    *json.Encoder

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	sequence atomic.Uint64
	written  atomic.Uint64
	dropped  atomic.Uint64

	writeErr error // set by the writer goroutine, read after Stop
}

// NewEventLog creates a log writing to w. Call Start before Emit.
func NewEventLog(w io.Writer) *EventLog {
	out := bufio.NewWriter(w)
	el := &EventLog{
		events:   make(chan Event, EventBufferSize),
		limiter:  rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		out:      out,
		enc:      json.NewEncoder(out),
		stopChan: make(chan struct{}),
	}
	if c, ok := w.(io.Closer); ok {
		el.closer = c
	}
	return el
}

// OpenEventLog creates a log appending to the file at path.
func OpenEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("game: open event log: %w", err)
	}
	return NewEventLog(f), nil
}

// Start begins the async writer goroutine
func (el *EventLog) Start() {
	if !el.running.CompareAndSwap(false, true) {
		return
	}
	el.writerWg.Add(1)
	go el.writerLoop()
}

// Stop flushes pending events and closes the underlying file, if any. It
// returns the first write error.
func (el *EventLog) Stop() error {
	if el == nil {
		return nil
	}
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		if el.closer != nil {
			if err := el.closer.Close(); err != nil && el.writeErr == nil {
				el.writeErr = err
			}
		}
	})
	return el.writeErr
}

// Emit queues an event. It returns false if the log is stopped, rate
// limited or full. A nil log accepts nothing.
func (el *EventLog) Emit(event Event) bool {
	if el == nil || !el.running.Load() {
		return false
	}
	if !el.limiter.Allow() {
		el.dropped.Add(1)
		return false
	}

	event.Sequence = el.sequence.Add(1)
	select {
	case el.events <- event:
		return true
	default:
		// Buffer full (backpressure)
		el.dropped.Add(1)
		return false
	}
}

// Stats returns counters since creation.
func (el *EventLog) Stats() EventLogStats {
	return EventLogStats{
		Emitted: el.sequence.Load(),
		Written: el.written.Load(),
		Dropped: el.dropped.Load(),
	}
}

// writerLoop batches and writes events asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case ev := <-el.events:
			batch = append(batch, ev)
			if len(batch) >= BatchFlushSize {
				el.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				el.flushBatch(batch)
				batch = batch[:0]
			}

		case <-el.stopChan:
			// Final flush of whatever is still queued
		drain:
			for {
				select {
				case ev := <-el.events:
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			el.flushBatch(batch)
			return
		}
	}
}

func (el *EventLog) flushBatch(batch []Event) {
	for _, ev := range batch {
		if err := el.enc.Encode(ev); err != nil {
			el.fail(err)
			return
		}
		el.written.Add(1)
	}
	if err := el.out.Flush(); err != nil {
		el.fail(err)
	}
}

func (el *EventLog) fail(err error) {
	if el.writeErr == nil {
		el.writeErr = fmt.Errorf("game: write event log: %w", err)
	}
}
