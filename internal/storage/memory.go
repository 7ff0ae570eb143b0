package storage

import (
	"context"
	"sync"
	"time"
)

const memoryDeliveryCap = 256

// Memory is a process-local Store. Fire state is lost on restart.
type Memory struct {
	mu         sync.Mutex
	closed     bool
	fired      map[string]string
	deliveries []DeliveryRecord
}

func NewMemory() *Memory {
	return &Memory{fired: map[string]string{}}
}

func (m *Memory) LastFired(_ context.Context, schedule string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	slot, ok := m.fired[schedule]
	return slot, ok, nil
}

func (m *Memory) MarkFired(_ context.Context, schedule, slot string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.fired[schedule] = slot
	return nil
}

func (m *Memory) AppendDelivery(_ context.Context, r DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if len(m.deliveries) >= memoryDeliveryCap {
		m.deliveries = append(m.deliveries[:0], m.deliveries[1:]...)
	}
	m.deliveries = append(m.deliveries, r)
	return nil
}

// Deliveries returns a copy of the retained delivery records, oldest first.
func (m *Memory) Deliveries() []DeliveryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeliveryRecord(nil), m.deliveries...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
