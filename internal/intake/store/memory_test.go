package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formvault/internal/intake/models"
	"formvault/internal/intake/service"
	dErrors "formvault/pkg/domain-errors"
)

func TestInMemoryRepositoryContract(t *testing.T) {
	testRepositoryContract(t, func(t *testing.T) service.Repository {
		return NewInMemoryStore()
	})
}

func TestInMemoryReadsDoNotSeeUncommittedWrites(t *testing.T) {
	repo := NewInMemoryStore()
	ctx := context.Background()

	err := repo.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		_, err := st.ReconcilePerson(ctx, "Ann", "Lee")
		require.NoError(t, err)

		people, err := repo.ListPeople(ctx)
		require.NoError(t, err)
		assert.Empty(t, people, "outside readers see the committed state")
		return nil
	})
	require.NoError(t, err)

	people, err := repo.ListPeople(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 1)
}

func TestInMemoryReturnsCopies(t *testing.T) {
	repo := NewInMemoryStore()
	ctx := context.Background()
	sub, err := record(ctx, repo, "Ann", "Lee", "BankA", baseTime)
	require.NoError(t, err)

	got, err := repo.FindSubmission(ctx, sub.ID)
	require.NoError(t, err)
	got.Bank = "changed"
	got.Status = models.StatusIncomplete

	again, err := repo.FindSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "BankA", again.Bank)
	assert.Equal(t, models.StatusComplete, again.Status)
}

func TestInMemoryRunInTxRejectsCancelledContext(t *testing.T) {
	repo := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.RunInTx(ctx, func(context.Context, service.Store) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
