package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"formvault/internal/intake/models"
	"formvault/internal/intake/service"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/sentinel"
)

// InMemoryStore implements service.Repository in process memory, for local
// development and tests.
//
// Transactions are serialized and work on a private copy of the state that is
// swapped in on commit, so a failed transaction leaves nothing behind. Reads
// outside a transaction see the last committed state.
type InMemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	nextPersonID int64
	people       map[int64]models.Person
	byName       map[string]int64
	submissions  map[string]models.Submission
}

func newMemState() *memState {
	return &memState{
		nextPersonID: 1,
		people:       make(map[int64]models.Person),
		byName:       make(map[string]int64),
		submissions:  make(map[string]models.Submission),
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		nextPersonID: st.nextPersonID,
		people:       make(map[int64]models.Person, len(st.people)),
		byName:       make(map[string]int64, len(st.byName)),
		submissions:  make(map[string]models.Submission, len(st.submissions)),
	}
	for k, v := range st.people {
		c.people[k] = v
	}
	for k, v := range st.byName {
		c.byName[k] = v
	}
	for k, v := range st.submissions {
		c.submissions[k] = v
	}
	return c
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: newMemState()}
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &memTx{state: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) view() *memTx {
	return &memTx{state: s.state}
}

func (s *InMemoryStore) ReconcilePerson(ctx context.Context, firstName, lastName string) (rec models.Reconciliation, err error) {
	err = s.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		rec, err = st.ReconcilePerson(ctx, firstName, lastName)
		return err
	})
	return rec, err
}

func (s *InMemoryStore) InsertSubmission(ctx context.Context, sub *models.Submission) error {
	return s.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		return st.InsertSubmission(ctx, sub)
	})
}

func (s *InMemoryStore) WithdrawSubmission(ctx context.Context, personID int64, sequence int) (remaining int, err error) {
	err = s.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		remaining, err = st.WithdrawSubmission(ctx, personID, sequence)
		return err
	})
	return remaining, err
}

func (s *InMemoryStore) DeleteSubmission(ctx context.Context, id string) error {
	return s.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		return st.DeleteSubmission(ctx, id)
	})
}

func (s *InMemoryStore) MarkSubmission(ctx context.Context, id string, status models.SubmissionStatus) error {
	return s.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		return st.MarkSubmission(ctx, id, status)
	})
}

func (s *InMemoryStore) DeletePerson(ctx context.Context, id int64) error {
	return s.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		return st.DeletePerson(ctx, id)
	})
}

func (s *InMemoryStore) Reset(ctx context.Context) error {
	return s.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		return st.Reset(ctx)
	})
}

func (s *InMemoryStore) ListSubmissions(ctx context.Context) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListSubmissions(ctx)
}

func (s *InMemoryStore) CountSubmissions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().CountSubmissions(ctx)
}

func (s *InMemoryStore) FindSubmission(ctx context.Context, id string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().FindSubmission(ctx, id)
}

func (s *InMemoryStore) FindPerson(ctx context.Context, id int64) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().FindPerson(ctx, id)
}

func (s *InMemoryStore) ListSubmissionsByPerson(ctx context.Context, personID int64) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListSubmissionsByPerson(ctx, personID)
}

func (s *InMemoryStore) ListPeople(ctx context.Context) ([]*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListPeople(ctx)
}

func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}

// memTx operates on one state without locking; the owner provides isolation.
type memTx struct {
	state *memState
}

func (t *memTx) ReconcilePerson(_ context.Context, firstName, lastName string) (models.Reconciliation, error) {
	fullName := models.FullName(firstName, lastName)
	if id, ok := t.state.byName[fullName]; ok {
		p := t.state.people[id]
		p.SubmissionCount++
		t.state.people[id] = p
		return models.Reconciliation{PersonID: id, Sequence: p.SubmissionCount}, nil
	}
	id := t.state.nextPersonID
	t.state.nextPersonID++
	t.state.people[id] = models.Person{
		ID:              id,
		FirstName:       firstName,
		LastName:        lastName,
		FullName:        fullName,
		SubmissionCount: 1,
	}
	t.state.byName[fullName] = id
	return models.Reconciliation{PersonID: id, Sequence: 1}, nil
}

func (t *memTx) InsertSubmission(_ context.Context, sub *models.Submission) error {
	if _, exists := t.state.submissions[sub.ID]; exists {
		return fmt.Errorf("insert submission %q: %w", sub.ID, sentinel.ErrConflict)
	}
	if _, ok := t.state.people[sub.PersonID]; !ok {
		return fmt.Errorf("insert submission %q: unknown person %d: %w", sub.ID, sub.PersonID, sentinel.ErrInvalidState)
	}
	for _, existing := range t.state.submissions {
		if existing.PersonID == sub.PersonID && existing.Sequence == sub.Sequence {
			return fmt.Errorf("insert submission %q: sequence %d taken: %w", sub.ID, sub.Sequence, sentinel.ErrConflict)
		}
	}
	t.state.submissions[sub.ID] = *sub
	return nil
}

func (t *memTx) WithdrawSubmission(_ context.Context, personID int64, sequence int) (int, error) {
	p, ok := t.state.people[personID]
	if !ok || p.SubmissionCount != sequence {
		return 0, fmt.Errorf("withdraw submission %d of person %d: %w", sequence, personID, sentinel.ErrInvalidState)
	}
	p.SubmissionCount--
	t.state.people[personID] = p
	return p.SubmissionCount, nil
}

func (t *memTx) DeleteSubmission(_ context.Context, id string) error {
	if _, ok := t.state.submissions[id]; !ok {
		return fmt.Errorf("delete submission: %w", sentinel.ErrNotFound)
	}
	delete(t.state.submissions, id)
	return nil
}

func (t *memTx) MarkSubmission(_ context.Context, id string, status models.SubmissionStatus) error {
	sub, ok := t.state.submissions[id]
	if !ok {
		return fmt.Errorf("mark submission: %w", sentinel.ErrNotFound)
	}
	sub.Status = status
	t.state.submissions[id] = sub
	return nil
}

func (t *memTx) ListSubmissions(context.Context) ([]*models.Submission, error) {
	subs := make([]*models.Submission, 0, len(t.state.submissions))
	for _, sub := range t.state.submissions {
		subs = append(subs, &sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].Timestamp.Equal(subs[j].Timestamp) {
			return subs[i].Timestamp.After(subs[j].Timestamp)
		}
		return subs[i].ID > subs[j].ID
	})
	return subs, nil
}

func (t *memTx) CountSubmissions(context.Context) (int, error) {
	return len(t.state.submissions), nil
}

func (t *memTx) FindSubmission(_ context.Context, id string) (*models.Submission, error) {
	sub, ok := t.state.submissions[id]
	if !ok {
		return nil, fmt.Errorf("find submission: %w", sentinel.ErrNotFound)
	}
	return &sub, nil
}

func (t *memTx) FindPerson(_ context.Context, id int64) (*models.Person, error) {
	p, ok := t.state.people[id]
	if !ok {
		return nil, fmt.Errorf("find person: %w", sentinel.ErrNotFound)
	}
	return &p, nil
}

func (t *memTx) ListSubmissionsByPerson(_ context.Context, personID int64) ([]*models.Submission, error) {
	subs := []*models.Submission{}
	for _, sub := range t.state.submissions {
		if sub.PersonID == personID {
			subs = append(subs, &sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].Timestamp.Equal(subs[j].Timestamp) {
			return subs[i].Timestamp.After(subs[j].Timestamp)
		}
		return subs[i].Sequence > subs[j].Sequence
	})
	return subs, nil
}

func (t *memTx) ListPeople(context.Context) ([]*models.Person, error) {
	people := make([]*models.Person, 0, len(t.state.people))
	for _, p := range t.state.people {
		people = append(people, &p)
	}
	sort.Slice(people, func(i, j int) bool {
		if people[i].SubmissionCount != people[j].SubmissionCount {
			return people[i].SubmissionCount > people[j].SubmissionCount
		}
		return people[i].FullName < people[j].FullName
	})
	return people, nil
}

// DeletePerson cascades to the person's submissions.
func (t *memTx) DeletePerson(_ context.Context, id int64) error {
	p, ok := t.state.people[id]
	if !ok {
		return fmt.Errorf("delete person: %w", sentinel.ErrNotFound)
	}
	for subID, sub := range t.state.submissions {
		if sub.PersonID == id {
			delete(t.state.submissions, subID)
		}
	}
	delete(t.state.byName, p.FullName)
	delete(t.state.people, id)
	return nil
}

func (t *memTx) Reset(context.Context) error {
	*t.state = *newMemState()
	return nil
}

func (t *memTx) Ping(context.Context) error {
	return nil
}

var (
	_ service.Repository = (*InMemoryStore)(nil)
	_ service.Repository = (*PostgresStore)(nil)
	_ service.Store      = (*memTx)(nil)
)
