package session

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Profiles() ProfileStore
	RecoveryRequests() repository.Repository[*RecoveryRequest]
}

// NewRecoveryRequestsRepository builds the audit-record repository for
// account-recovery attempts.
func NewRecoveryRequestsRepository(db *bun.DB) repository.Repository[*RecoveryRequest] {
	handlers := repository.ModelHandlers[*RecoveryRequest]{
		NewRecord: func() *RecoveryRequest {
			return &RecoveryRequest{}
		},
		GetID: func(record *RecoveryRequest) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *RecoveryRequest, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db               *bun.DB
	profiles         ProfileStore
	recoveryRequests repository.Repository[*RecoveryRequest]
}

// NewRepositoryManager wires the bun-backed repositories. The profiles store
// is injected because its document key is the provider identity id, not a
// locally minted uuid.
func NewRepositoryManager(db *bun.DB, profiles ProfileStore) RepositoryManager {
	return &mngr{
		db:               db,
		profiles:         profiles,
		recoveryRequests: NewRecoveryRequestsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.recoveryRequests == nil {
		return errors.New("repository recoveryRequests should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Profiles() ProfileStore {
	return m.profiles
}

func (m mngr) RecoveryRequests() repository.Repository[*RecoveryRequest] {
	return m.recoveryRequests
}
