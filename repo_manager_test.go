package session_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestRepositoryManagerValidate(t *testing.T) {
	repo := setupRecoveryDB(t)
	require.NoError(t, repo.Validate())
	assert.NotNil(t, repo.Profiles())
	assert.NotNil(t, repo.RecoveryRequests())
}

func TestRepositoryManagerRunInTx(t *testing.T) {
	repo := setupRecoveryDB(t)
	ctx := context.Background()

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &session.RecoveryRequest{
			Email:  "pepe.rone@example.com",
			Status: session.RecoveryRequestedStatus,
		}
		_, err := repo.RecoveryRequests().CreateTx(ctx, tx, record)
		return err
	})
	require.NoError(t, err)

	stored, err := repo.RecoveryRequests().GetByIdentifier(ctx, "pepe.rone@example.com")
	require.NoError(t, err)
	assert.Equal(t, session.RecoveryRequestedStatus, stored.Status)
}

func TestRepositoryManagerRunInTxHonorsCancelledContext(t *testing.T) {
	repo := setupRecoveryDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
