package messaging

import (
	"sync"

	"github.com/BTreeMap/SafeBirth/internal/models"
)

// eventChannels holds the receipt and response channels of a Service. Emits hold the
// read lock so stop never closes a channel under a pending send.
type eventChannels struct {
	mu        sync.RWMutex
	stopped   bool
	receipts  chan models.Receipt
	responses chan models.Response
}

func newEventChannels() *eventChannels {
	return &eventChannels{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (e *eventChannels) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

// stop closes both channels once. It reports whether this call stopped them.
func (e *eventChannels) stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.stopped = true
	close(e.receipts)
	close(e.responses)
	return true
}

func (e *eventChannels) emitReceipt(r models.Receipt) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return false
	}
	return emit(e.receipts, r)
}

func (e *eventChannels) emitResponse(r models.Response) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return false
	}
	return emit(e.responses, r)
}
