package job

import (
	"sort"
	"sync"
)

// Store keeps one Job per account in memory
type Store struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewStore creates an empty job store
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Get returns a copy of the account's job, creating an idle one on first use
func (s *Store) Get(accountID string) *Job {
	s.mu.RLock()
	j, ok := s.jobs[accountID]
	if ok {
		j = j.clone()
	}
	s.mu.RUnlock()
	if ok {
		return j
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(accountID).clone()
}

// Merge shallow-merges p into the account's job
func (s *Store) Merge(accountID string, p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.apply(s.lookup(accountID))
}

// Update applies fn to the current record under the store lock
func (s *Store) Update(accountID string, fn func(j *Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.lookup(accountID))
}

// Each calls fn for every job in account order; fn may modify the job
func (s *Store) Each(fn func(accountID string, j *Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fn(id, s.jobs[id])
	}
}

// Forget drops the job of a deleted account
func (s *Store) Forget(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, accountID)
}

func (s *Store) lookup(accountID string) *Job {
	j, ok := s.jobs[accountID]
	if !ok {
		j = newJob()
		s.jobs[accountID] = j
	}
	return j
}
