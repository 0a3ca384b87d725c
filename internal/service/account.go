package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-clicker/internal/model"
	"telegram-clicker/internal/repository"
)

// AccountService handles user accounts.
type AccountService struct {
	store    repository.Store
	verifier IdentityVerifier
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(store repository.Store, verifier IdentityVerifier) *AccountService {
	return &AccountService{
		store:    store,
		verifier: verifier,
	}
}

// Authenticate verifies init data and returns the identity it carries.
func (s *AccountService) Authenticate(initData string) (*model.Identity, error) {
	if initData == "" {
		return nil, ErrInvalidRequest
	}
	identity, err := s.verifier.Verify(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return identity, nil
}

// EnsureUser verifies init data and returns the matching user, creating it on
// first verification. Returns whether the user was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, initData string) (*model.User, bool, error) {
	identity, err := s.Authenticate(initData)
	if err != nil {
		return nil, false, err
	}
	return s.EnsureTelegramUser(ctx, identity)
}

// EnsureTelegramUser returns the user for an already verified identity, creating it if needed.
func (s *AccountService) EnsureTelegramUser(ctx context.Context, identity *model.Identity) (*model.User, bool, error) {
	user, err := s.store.GetUserByTelegramID(ctx, identity.ID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, fmt.Errorf("failed to get user: %w", err)
	}

	user, err = s.store.CreateUser(ctx, identity.ID, identity.DisplayName())
	if err != nil {
		// Handle race condition: another request might have created the user
		user, getErr := s.store.GetUserByTelegramID(ctx, identity.ID)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to ensure user: %w", err)
		}
		return user, false, nil
	}

	log.Info().
		Str("telegram_id", identity.ID).
		Str("username", user.Username).
		Msg("User created")

	return user, true, nil
}

// GetUser returns the user for an identity without creating it.
func (s *AccountService) GetUser(ctx context.Context, identity *model.Identity) (*model.User, error) {
	user, err := s.store.GetUserByTelegramID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// RecentTransactions returns the user's latest points ledger entries, newest first.
func (s *AccountService) RecentTransactions(ctx context.Context, identity *model.Identity, limit int) ([]*model.PointsTransaction, error) {
	user, err := s.GetUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	transactions, err := s.store.ListPointsTransactions(ctx, user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if transactions == nil {
		transactions = []*model.PointsTransaction{}
	}
	return transactions, nil
}
