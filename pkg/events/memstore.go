package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an EventStore for deployments without a database. History
// is lost on restart and capped per verification.
type MemoryStore struct {
	mu     sync.RWMutex
	seq    int64
	byID   map[string][]StoredEvent
	maxPer int
}

// NewMemoryStore keeps at most maxPer events per verification; 0 means 100.
func NewMemoryStore(maxPer int) *MemoryStore {
	if maxPer <= 0 {
		maxPer = 100
	}
	return &MemoryStore{byID: make(map[string][]StoredEvent), maxPer: maxPer}
}

func (m *MemoryStore) Append(_ context.Context, ev ...Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range ev {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		at := e.Timestamp()
		if at.IsZero() {
			at = time.Now().UTC()
		}
		m.seq++
		list := append(m.byID[e.VerificationID()], StoredEvent{
			Seq:            m.seq,
			VerificationID: e.VerificationID(),
			Type:           e.Type(),
			At:             at,
			Actor:          e.Actor(),
			Data:           data,
		})
		if len(list) > m.maxPer {
			list = list[len(list)-m.maxPer:]
		}
		m.byID[e.VerificationID()] = list
	}
	return nil
}

func (m *MemoryStore) ListByVerification(_ context.Context, id string) ([]StoredEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StoredEvent(nil), m.byID[id]...), nil
}

var _ EventStore = (*MemoryStore)(nil)
