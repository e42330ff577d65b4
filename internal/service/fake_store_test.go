package service

import (
	"context"
	"sort"
	"sync"

	"github.com/shinyyama/dm-api/internal/model"
	"github.com/shinyyama/dm-api/internal/repository"
)

// memoryStore is an in-memory MessageRepository with the same conditional
// counter semantics as the real stores.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]model.Record
	counter *model.Counter

	getErr       error
	insertErr    error
	incrementErr error
	increments   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]model.Record{}}
}

// seededStore loads the counter at 6 and the six messages the seed command writes.
func seededStore() *memoryStore {
	s := newMemoryStore()
	s.counter = &model.Counter{Timestamp: "2023-01-01 00:00:00.000000", RecordCount: 6}
	s.put(&model.DirectMessage{ID: "1", Timestamp: "2023-01-01 00:00:01.000000", To: "j-otterbox", From: "jackie_chan", Body: "hello j-otterbox! -jackie"})
	s.put(&model.DirectMessage{ID: "2", Timestamp: "2023-01-01 00:00:02.000000", To: "j-otterbox", From: "obama", Body: "hello j-otterbox! -obama"})
	s.put(&model.Reply{ID: "3", Timestamp: "2023-01-01 00:00:03.000000", ParentID: "1", To: "jackie_chan", From: "j-otterbox", Body: "hello jackie! replying to your earlier msg"})
	s.put(&model.Reply{ID: "4", Timestamp: "2023-01-01 00:00:04.000000", ParentID: "2", To: "obama", From: "j-otterbox", Body: "hello obama! -j-otterbox"})
	s.put(&model.Reply{ID: "5", Timestamp: "2023-01-01 00:00:05.000000", ParentID: "2", To: "obama", From: "j-otterbox", Body: "really? you gonna leave me on read?"})
	s.put(&model.Reply{ID: "6", Timestamp: "2023-01-01 00:00:06.000000", ParentID: "2", To: "obama", From: "j-otterbox", Body: "testing message"})
	return s
}

func (s *memoryStore) put(rec model.Record) {
	s.records[rec.RecordID()] = rec
}

func (s *memoryStore) Init(context.Context) error { return nil }

func (s *memoryStore) GetByID(_ context.Context, id string) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if id == model.CounterID && s.counter != nil {
		return &model.Counter{Timestamp: s.counter.Timestamp, RecordCount: s.counter.RecordCount}, nil
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (s *memoryStore) ListByRecipient(_ context.Context, username string) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Record
	for _, rec := range s.sorted() {
		if _, to, ok := model.Participants(rec); ok && to == username {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memoryStore) ListByParent(_ context.Context, parentID string) ([]*model.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Reply
	for _, rec := range s.sorted() {
		if r, ok := rec.(*model.Reply); ok && r.ParentID == parentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) Insert(_ context.Context, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, exists := s.records[rec.RecordID()]; exists {
		return repository.ErrConflict
	}
	s.put(rec)
	return nil
}

func (s *memoryStore) GetCounter(context.Context) (*model.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counter == nil {
		return nil, repository.ErrNotFound
	}
	return &model.Counter{Timestamp: s.counter.Timestamp, RecordCount: s.counter.RecordCount}, nil
}

func (s *memoryStore) IncrementCounter(_ context.Context, current *model.Counter) (*model.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incrementErr != nil {
		return nil, s.incrementErr
	}
	if s.counter == nil {
		return nil, repository.ErrNotFound
	}
	if s.counter.RecordCount != current.RecordCount {
		return nil, repository.ErrCounterConflict
	}
	s.counter.RecordCount++
	s.increments++
	return &model.Counter{Timestamp: s.counter.Timestamp, RecordCount: s.counter.RecordCount}, nil
}

func (s *memoryStore) UpdateCounter(_ context.Context, newCount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counter == nil {
		return repository.ErrNotFound
	}
	s.counter.RecordCount = newCount
	return nil
}

func (s *memoryStore) count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter.RecordCount
}

func (s *memoryStore) sorted() []model.Record {
	out := make([]model.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordTimestamp() < out[j].RecordTimestamp()
	})
	return out
}

// contendedStore loses the counter race a fixed number of times before
// letting increments through.
type contendedStore struct {
	*memoryStore
	losses int
}

func (s *contendedStore) IncrementCounter(ctx context.Context, current *model.Counter) (*model.Counter, error) {
	if s.losses > 0 {
		s.losses--
		return nil, repository.ErrCounterConflict
	}
	return s.memoryStore.IncrementCounter(ctx, current)
}
