package sendprocess

import (
	"context"
	"sync"

	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

// ringBuffer is the fixed-capacity handshake between the fetcher and sender
// coroutines: a fixed slice of slots guarded by two counting semaphores,
// empty and full, exactly mirroring the original two-semaphore producer/
// consumer coupling rather than an unbounded queue. A full buffer blocks the
// fetcher; an empty buffer blocks the sender.
type ringBuffer struct {
	mu    sync.Mutex
	slots [][]storageclient.Reading
	head  int
	tail  int

	empty chan struct{} // one token per free slot
	full  chan struct{} // one token per filled slot
}

func newRingBuffer(capacity int) *ringBuffer {
	rb := &ringBuffer{
		slots: make([][]storageclient.Reading, capacity),
		empty: make(chan struct{}, capacity),
		full:  make(chan struct{}, capacity),
	}
	for i := 0; i < capacity; i++ {
		rb.empty <- struct{}{}
	}
	return rb
}

// Put blocks until a slot is free, writes batch into it, then signals the
// sender. Returns false if ctx was cancelled while waiting for a free slot.
func (rb *ringBuffer) Put(ctx context.Context, batch []storageclient.Reading) bool {
	select {
	case <-rb.empty:
	case <-ctx.Done():
		return false
	}

	rb.mu.Lock()
	rb.slots[rb.tail] = batch
	rb.tail = (rb.tail + 1) % len(rb.slots)
	rb.mu.Unlock()

	rb.full <- struct{}{}
	return true
}

// Peek blocks until a batch is available and returns it without consuming
// the slot, so the sender can retry the same batch on failure. Returns
// ok=false if ctx was cancelled while waiting.
func (rb *ringBuffer) Peek(ctx context.Context) ([]storageclient.Reading, bool) {
	select {
	case <-rb.full:
	case <-ctx.Done():
		return nil, false
	}

	rb.mu.Lock()
	batch := rb.slots[rb.head]
	rb.mu.Unlock()

	// put the full token back; Advance consumes it for real once the send
	// for this slot finally succeeds.
	rb.full <- struct{}{}
	return batch, true
}

// TryPeek is Peek's non-blocking counterpart: if no batch is available right
// now, it returns ok=false immediately instead of waiting, so the sender can
// flush a pending checkpoint before blocking.
func (rb *ringBuffer) TryPeek() ([]storageclient.Reading, bool) {
	select {
	case <-rb.full:
	default:
		return nil, false
	}

	rb.mu.Lock()
	batch := rb.slots[rb.head]
	rb.mu.Unlock()

	rb.full <- struct{}{}
	return batch, true
}

// Advance consumes the head slot's full token and frees it for the fetcher,
// called only after a successful send.
func (rb *ringBuffer) Advance() {
	<-rb.full

	rb.mu.Lock()
	rb.slots[rb.head] = nil
	rb.head = (rb.head + 1) % len(rb.slots)
	rb.mu.Unlock()

	rb.empty <- struct{}{}
}
