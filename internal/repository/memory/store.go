package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"
)

// Store keeps encoded documents in memory so callers never share state with
// it. Useful for tests and throwaway runs.
type Store struct {
	mu       sync.Mutex
	locks    map[repository.Collection]*sync.RWMutex
	docs     map[repository.Collection][]byte
	failures map[repository.Collection]error
	observer repository.StoreObserver
}

func NewStore() *Store {
	return &Store{
		locks:    make(map[repository.Collection]*sync.RWMutex),
		docs:     make(map[repository.Collection][]byte),
		failures: make(map[repository.Collection]error),
		observer: repository.NopObserver{},
	}
}

func (s *Store) WithObserver(observer repository.StoreObserver) *Store {
	s.observer = observer
	return s
}

// FailNextWrite makes the next write to c return err wrapped as ErrIO.
func (s *Store) FailNextWrite(c repository.Collection, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[c] = err
}

// SetRaw replaces the stored bytes for c, bypassing encoding.
func (s *Store) SetRaw(c repository.Collection, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[c] = append([]byte(nil), data...)
}

func (s *Store) Read(ctx context.Context, c repository.Collection, doc repository.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.lock(c)
	l.RLock()
	defer l.RUnlock()
	s.decode(c, doc)
	return nil
}

func (s *Store) Write(ctx context.Context, c repository.Collection, doc repository.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.lock(c)
	l.Lock()
	defer l.Unlock()
	return s.store(c, doc)
}

func (s *Store) Update(ctx context.Context, c repository.Collection, doc repository.Document, mutate func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.lock(c)
	l.Lock()
	defer l.Unlock()

	s.decode(c, doc)
	if err := mutate(); err != nil {
		return err
	}
	return s.store(c, doc)
}

func (s *Store) lock(c repository.Collection) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[c]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[c] = l
	}
	return l
}

func (s *Store) decode(c repository.Collection, doc repository.Document) {
	s.mu.Lock()
	data, ok := s.docs[c]
	s.mu.Unlock()

	doc.Reset()
	if !ok {
		return
	}
	if err := json.Unmarshal(data, doc); err != nil {
		doc.Reset()
		s.observer.ObserveFallback(c, err)
		return
	}
	doc.Normalize()
}

func (s *Store) store(c repository.Collection, doc repository.Document) error {
	start := time.Now()

	s.mu.Lock()
	failure := s.failures[c]
	delete(s.failures, c)
	s.mu.Unlock()

	if failure != nil {
		s.observer.ObserveWrite(c, time.Since(start), failure)
		return fmt.Errorf("%w: write %s: %v", domain.ErrIO, c, failure)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		s.observer.ObserveWrite(c, time.Since(start), err)
		return fmt.Errorf("%w: encode %s: %v", domain.ErrIO, c, err)
	}

	s.mu.Lock()
	s.docs[c] = data
	s.mu.Unlock()
	s.observer.ObserveWrite(c, time.Since(start), nil)
	return nil
}
