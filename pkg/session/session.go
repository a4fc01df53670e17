// Package session keeps per-conversation state across updates in a
// consumer-supplied in-memory store.
package session

import (
	"maps"
	"strconv"
	"sync"

	"tgflow/pkg/bot"
	"tgflow/pkg/compose"
)

const stateKey = "session"

// Data is the mutable session of one chat/sender pair.
type Data map[string]any

// Store holds sessions by key.
type Store interface {
	Get(key string) (Data, bool)
	Set(key string, data Data)
	Delete(key string)
}

// MemoryStore is a mutex-guarded map Store. Values are copied on the way in
// and out so concurrent updates never share a map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Data
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Data)}
}

func (s *MemoryStore) Get(key string) (Data, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return maps.Clone(data), true
}

func (s *MemoryStore) Set(key string, data Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = maps.Clone(data)
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// KeyFunc derives the session key of an update; ok=false skips the session.
type KeyFunc func(c *bot.Context) (string, bool)

// DefaultKey keys sessions by sender and chat, "<from>:<chat>".
func DefaultKey(c *bot.Context) (string, bool) {
	from, ok := c.SenderID()
	if !ok {
		return "", false
	}
	chat, ok := c.ChatID()
	if !ok {
		return "", false
	}
	return strconv.FormatInt(from, 10) + ":" + strconv.FormatInt(chat, 10), true
}

// Middleware loads the session before the rest of the chain and saves it
// afterwards. A session cleared with Reset is deleted from the store.
func Middleware(store Store, key KeyFunc) bot.Handler {
	if key == nil {
		key = DefaultKey
	}
	return func(c *bot.Context, next compose.Next) error {
		sessionKey, ok := key(c)
		if !ok {
			return next()
		}

		data, found := store.Get(sessionKey)
		if !found || data == nil {
			data = Data{}
		}
		holder := &holder{data: data}
		c.State[stateKey] = holder

		if err := next(); err != nil {
			return err
		}

		if holder.data == nil {
			store.Delete(sessionKey)
			return nil
		}
		store.Set(sessionKey, holder.data)
		return nil
	}
}

type holder struct {
	data Data
}

// From returns the session of the update, or nil when the middleware did not run.
func From(c *bot.Context) Data {
	h, ok := c.State[stateKey].(*holder)
	if !ok || h.data == nil {
		return nil
	}
	return h.data
}

// Reset drops the session of the update; it is deleted once the chain completes.
func Reset(c *bot.Context) {
	if h, ok := c.State[stateKey].(*holder); ok {
		h.data = nil
	}
}
