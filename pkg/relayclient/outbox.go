package relayclient

import (
	"encoding/json"
	"sync"
)

// PendingChange is a delta that could not be sent while offline.
type PendingChange struct {
	DocumentID string
	Delta      json.RawMessage
}

// Outbox buffers outgoing deltas in send order across all documents.
type Outbox struct {
	mu    sync.Mutex
	items []PendingChange
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Push(docID string, delta json.RawMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, PendingChange{DocumentID: docID, Delta: delta})
}

// Pending returns the buffered deltas for one document, oldest first.
func (o *Outbox) Pending(docID string) []json.RawMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []json.RawMessage
	for _, item := range o.items {
		if item.DocumentID == docID {
			out = append(out, item.Delta)
		}
	}
	return out
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Drain empties the outbox and returns its contents in send order. Each
// buffered delta is handed out once.
func (o *Outbox) Drain() []PendingChange {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := o.items
	o.items = nil
	return items
}
