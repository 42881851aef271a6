// Package ratelimit предоставляет лимитер с фиксированным окном по ключу.
// Используется для сдерживания шумных источников, например потока клиентских
// отчётов об ошибках.
package ratelimit

import (
	"sync"
	"time"
)

// Throttler решает, нужно ли подавить событие с данным ключом.
type Throttler interface {
	ShouldThrottle(key string) bool
}

type entry struct {
	count       int
	windowStart time.Time
}

// Memory лимитер в памяти: не более limit событий на ключ за окно window.
// Память ограничена maxKeys; при переполнении устаревшие записи вытесняются.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry

	limit   int
	window  time.Duration
	maxKeys int
	now     func() time.Time
}

// NewMemory создает лимитер: limit событий на ключ в окне window,
// не более maxKeys отслеживаемых ключей.
func NewMemory(limit int, window time.Duration, maxKeys int) *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

// ShouldThrottle возвращает true, если событий с этим ключом в текущем окне
// уже не меньше лимита. Сам вызов учитывается как событие.
func (m *Memory) ShouldThrottle(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	e, ok := m.entries[key]
	if !ok || now.Sub(e.windowStart) >= m.window {
		if !ok && len(m.entries) >= m.maxKeys {
			m.evictStale(now)
		}
		m.entries[key] = &entry{count: 1, windowStart: now}
		return false
	}

	e.count++
	return e.count > m.limit
}

// evictStale удаляет записи с истекшим окном; если таких нет,
// карта сбрасывается целиком, чтобы ограничить память.
func (m *Memory) evictStale(now time.Time) {
	evicted := false
	for k, e := range m.entries {
		if now.Sub(e.windowStart) >= m.window {
			delete(m.entries, k)
			evicted = true
		}
	}
	if !evicted {
		m.entries = make(map[string]*entry)
	}
}
