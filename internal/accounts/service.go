package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/verdant-crm/verdant/internal/audit"
	"github.com/verdant-crm/verdant/internal/shared"
)

// RepositoryPort defines data access for user accounts.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	IsLocked(ctx context.Context, id uuid.UUID) (bool, error)
	EarliestUser(ctx context.Context) (User, error)
}

// TxRepository is the transactional slice of the repository.
type TxRepository interface {
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (bool, error)
	SetLock(ctx context.Context, id uuid.UUID, by uuid.UUID, at time.Time) (bool, error)
	ClearLock(ctx context.Context, id uuid.UUID) (bool, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordAudit(ctx context.Context, entry audit.Entry) error
}

// Service manages user accounts and the lock state machine. Accounts cycle
// freely between Unlocked and Locked over their lifetime.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: validator.New(), logger: logger}
}

// Create inserts a new, unlocked account.
func (s *Service) Create(ctx context.Context, input CreateUserInput) (User, error) {
	if err := s.validate.Struct(input); err != nil {
		return User{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	var stored User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		user := User{
			ID:           uuid.New(),
			Email:        input.Email,
			PasswordHash: input.PasswordHash,
			FirstName:    input.FirstName,
			LastName:     input.LastName,
		}
		var err error
		stored, err = tx.CreateUser(ctx, user)
		if err != nil {
			return err
		}
		entry := s.newEntry(ctx, audit.ActionCreate, &stored.ID)
		entry.NewValues = map[string]any{
			"email":      stored.Email,
			"first_name": stored.FirstName,
			"last_name":  stored.LastName,
			"is_active":  stored.IsActive,
		}
		return tx.RecordAudit(ctx, entry)
	})
	if err != nil {
		return User{}, err
	}
	return stored, nil
}

// Delete removes an account; role bindings cascade with it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, err := tx.GetUserForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteUser(ctx, id); err != nil {
			return err
		}
		entry := s.newEntry(ctx, audit.ActionDelete, &id)
		entry.OldValues = map[string]any{"email": prior.Email}
		return tx.RecordAudit(ctx, entry)
	})
}

// Lock transitions Unlocked → Locked, stamping when and by whom. Locking an
// already-locked account is a no-op: the original provenance stands. Actors
// cannot lock themselves out.
func (s *Service) Lock(ctx context.Context, userID, by uuid.UUID) error {
	if userID == by {
		return fmt.Errorf("%w: cannot lock own account", shared.ErrInvalidInput)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if prior.IsLocked {
			return nil
		}
		locked, err := tx.SetLock(ctx, userID, by, time.Now().UTC())
		if err != nil {
			return err
		}
		if !locked {
			return nil
		}
		entry := s.newEntry(ctx, audit.ActionLock, &userID)
		entry.OldValues = map[string]any{"locked": false}
		entry.NewValues = map[string]any{"locked": true, "locked_by": by.String()}
		return tx.RecordAudit(ctx, entry)
	})
}

// Unlock transitions Locked → Unlocked, clearing all three lock fields in one
// write. Unlocking an unlocked account is a no-op.
func (s *Service) Unlock(ctx context.Context, userID uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !prior.IsLocked {
			return nil
		}
		cleared, err := tx.ClearLock(ctx, userID)
		if err != nil {
			return err
		}
		if !cleared {
			return nil
		}
		entry := s.newEntry(ctx, audit.ActionUnlock, &userID)
		entry.OldValues = map[string]any{"locked": true}
		entry.NewValues = map[string]any{"locked": false}
		return tx.RecordAudit(ctx, entry)
	})
}

// RecordLogin stamps last_login after the external credential layer has
// authenticated the user.
func (s *Service) RecordLogin(ctx context.Context, userID uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetUserForUpdate(ctx, userID); err != nil {
			return err
		}
		return tx.TouchLastLogin(ctx, userID, time.Now().UTC())
	})
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// IsLocked answers the lock precondition for the evaluator.
func (s *Service) IsLocked(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.IsLocked(ctx, id)
}

func (s *Service) newEntry(ctx context.Context, action string, resourceID *uuid.UUID) audit.Entry {
	entry := audit.Entry{Action: action, ResourceType: audit.ResourceUser, ResourceID: resourceID}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		actorID := actor.UserID
		entry.ActorID = &actorID
		entry.IPAddress = actor.IPAddress
		entry.UserAgent = actor.UserAgent
	}
	return entry
}
