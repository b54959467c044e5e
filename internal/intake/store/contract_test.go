package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formvault/internal/intake/models"
	"formvault/internal/intake/service"
	"formvault/pkg/platform/sentinel"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// record reconciles and inserts one submission in a single transaction.
func record(ctx context.Context, repo service.Repository, first, last, bank string, at time.Time) (*models.Submission, error) {
	var sub *models.Submission
	err := repo.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		rec, err := st.ReconcilePerson(ctx, first, last)
		if err != nil {
			return err
		}
		form := models.Form{FirstName: first, LastName: last, Bank: bank}
		sub, err = models.NewSubmission(rec, form, fmt.Sprintf("%s-%d.jpg", models.Slug(form.FullName()), rec.Sequence), at)
		if err != nil {
			return err
		}
		return st.InsertSubmission(ctx, sub)
	})
	return sub, err
}

// testRepositoryContract exercises the behaviour every service.Repository
// must share. newRepo returns an empty repository.
func testRepositoryContract(t *testing.T, newRepo func(t *testing.T) service.Repository) {
	ctx := context.Background()

	t.Run("distinct names each start at one", func(t *testing.T) {
		repo := newRepo(t)
		names := [][2]string{{"Ann", "Lee"}, {"Bo", "Kim"}, {"Cy", "Ng"}}
		seen := map[int64]bool{}
		for i, n := range names {
			sub, err := record(ctx, repo, n[0], n[1], "BankA", baseTime.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
			assert.Equal(t, 1, sub.Sequence)
			assert.Equal(t, n[0]+" "+n[1]+" 1", sub.ID)
			assert.False(t, seen[sub.PersonID], "person ids must be distinct")
			seen[sub.PersonID] = true
		}
	})

	t.Run("same name increments the counter", func(t *testing.T) {
		repo := newRepo(t)
		first, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime)
		require.NoError(t, err)
		second, err := record(ctx, repo, "Ann", "Lee", "BankB", baseTime.Add(time.Minute))
		require.NoError(t, err)

		assert.Equal(t, "Ann Lee 1", first.ID)
		assert.Equal(t, "Ann Lee 2", second.ID)
		assert.Equal(t, first.PersonID, second.PersonID)

		person, err := repo.FindPerson(ctx, first.PersonID)
		require.NoError(t, err)
		assert.Equal(t, 2, person.SubmissionCount)
		assert.Equal(t, "Ann Lee", person.FullName)
	})

	t.Run("concurrent same name yields one to n", func(t *testing.T) {
		repo := newRepo(t)
		const n = 12
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seqs []int
			errs []error
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sub, err := record(ctx, repo, "Bo", "Kim", "BankC", baseTime)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				seqs = append(seqs, sub.Sequence)
			}()
		}
		wg.Wait()
		require.Empty(t, errs)

		sort.Ints(seqs)
		want := make([]int, n)
		for i := range want {
			want[i] = i + 1
		}
		assert.Equal(t, want, seqs)

		people, err := repo.ListPeople(ctx)
		require.NoError(t, err)
		require.Len(t, people, 1)
		assert.Equal(t, n, people[0].SubmissionCount)

		count, err := repo.CountSubmissions(ctx)
		require.NoError(t, err)
		assert.Equal(t, n, count)
	})

	t.Run("failed transaction rolls back the increment", func(t *testing.T) {
		repo := newRepo(t)
		_, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = repo.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
			if _, err := st.ReconcilePerson(ctx, "Ann", "Lee"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		sub, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, sub.Sequence, "rolled back increment must not burn a number")
	})

	t.Run("duplicate submission id conflicts", func(t *testing.T) {
		repo := newRepo(t)
		sub, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime)
		require.NoError(t, err)

		dup := *sub
		err = repo.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
			return st.InsertSubmission(ctx, &dup)
		})
		require.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("withdraw only releases the latest number", func(t *testing.T) {
		repo := newRepo(t)
		first, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime)
		require.NoError(t, err)
		_, err = record(ctx, repo, "Ann", "Lee", "BankA", baseTime.Add(time.Second))
		require.NoError(t, err)

		_, err = repo.WithdrawSubmission(ctx, first.PersonID, 1)
		require.ErrorIs(t, err, sentinel.ErrInvalidState)

		remaining, err := repo.WithdrawSubmission(ctx, first.PersonID, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, remaining)
		require.NoError(t, repo.DeleteSubmission(ctx, "Ann Lee 2"))

		next, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "Ann Lee 2", next.ID)
	})

	t.Run("mark submission incomplete", func(t *testing.T) {
		repo := newRepo(t)
		sub, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime)
		require.NoError(t, err)

		require.NoError(t, repo.MarkSubmission(ctx, sub.ID, models.StatusIncomplete))
		got, err := repo.FindSubmission(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusIncomplete, got.Status)

		require.ErrorIs(t, repo.MarkSubmission(ctx, "Nobody 1", models.StatusIncomplete), sentinel.ErrNotFound)
	})

	t.Run("lookups and ordering", func(t *testing.T) {
		repo := newRepo(t)
		_, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime)
		require.NoError(t, err)
		_, err = record(ctx, repo, "Bo", "Kim", "BankB", baseTime.Add(time.Minute))
		require.NoError(t, err)
		last, err := record(ctx, repo, "Ann", "Lee", "BankC", baseTime.Add(2*time.Minute))
		require.NoError(t, err)
		_, err = record(ctx, repo, "Al", "Zed", "BankD", baseTime.Add(3*time.Minute))
		require.NoError(t, err)

		subs, err := repo.ListSubmissions(ctx)
		require.NoError(t, err)
		ids := make([]string, len(subs))
		for i, s := range subs {
			ids[i] = s.ID
		}
		assert.Equal(t, []string{"Al Zed 1", "Ann Lee 2", "Bo Kim 1", "Ann Lee 1"}, ids)

		got, err := repo.FindSubmission(ctx, "Ann Lee 2")
		require.NoError(t, err)
		assert.Equal(t, "BankC", got.Bank)
		assert.True(t, got.Timestamp.Equal(last.Timestamp))

		byPerson, err := repo.ListSubmissionsByPerson(ctx, last.PersonID)
		require.NoError(t, err)
		require.Len(t, byPerson, 2)
		assert.Equal(t, "Ann Lee 2", byPerson[0].ID)
		assert.Equal(t, "Ann Lee 1", byPerson[1].ID)

		people, err := repo.ListPeople(ctx)
		require.NoError(t, err)
		names := make([]string, len(people))
		for i, p := range people {
			names[i] = p.FullName
		}
		assert.Equal(t, []string{"Ann Lee", "Al Zed", "Bo Kim"}, names)

		_, err = repo.FindSubmission(ctx, "Nobody 1")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = repo.FindPerson(ctx, 9999)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("delete person cascades to their submissions only", func(t *testing.T) {
		repo := newRepo(t)
		ann, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime)
		require.NoError(t, err)
		_, err = record(ctx, repo, "Ann", "Lee", "BankB", baseTime.Add(time.Second))
		require.NoError(t, err)
		bo, err := record(ctx, repo, "Bo", "Kim", "BankC", baseTime.Add(2*time.Second))
		require.NoError(t, err)

		require.NoError(t, repo.DeletePerson(ctx, ann.PersonID))

		subs, err := repo.ListSubmissions(ctx)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, bo.ID, subs[0].ID)

		_, err = repo.FindPerson(ctx, ann.PersonID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
		require.ErrorIs(t, repo.DeletePerson(ctx, ann.PersonID), sentinel.ErrNotFound)

		again, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "Ann Lee 1", again.ID, "a recreated person starts over")
	})

	t.Run("reset empties the store", func(t *testing.T) {
		repo := newRepo(t)
		_, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime)
		require.NoError(t, err)

		require.NoError(t, repo.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
			return st.Reset(ctx)
		}))

		count, err := repo.CountSubmissions(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
		people, err := repo.ListPeople(ctx)
		require.NoError(t, err)
		assert.Empty(t, people)
	})
}
