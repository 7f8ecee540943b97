package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/pixora/backend/internal/auth"
	"github.com/pixora/backend/pkg/validator"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxSearchLimit   = 10
)

// AccountService handles registration, sessions and profile reads
type AccountService struct {
	repo     AccountRepository
	verifier auth.Verifier
	policy   StoryPolicy
	logger   *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(repo AccountRepository, verifier auth.Verifier, policy StoryPolicy, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		repo:     repo,
		verifier: verifier,
		policy:   policy,
		logger:   logger.Named("accounts"),
	}
}

// Register creates an account for the identity behind token and registers
// token as its first session.
func (s *AccountService) Register(ctx context.Context, token, displayName, handle string) (*Account, error) {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = identity.Name
	}
	if displayName == "" {
		return nil, &ValidationError{Field: "displayName", Message: "display name is required"}
	}
	handle = NormalizeHandle(handle)
	if handle == "" {
		return nil, &ValidationError{Field: "handle", Message: "handle is required"}
	}

	if _, err := s.repo.GetAccountBySubject(ctx, identity.Subject); err == nil {
		return nil, ErrSubjectTaken
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	account, err := s.repo.CreateAccount(ctx, CreateAccountParams{
		ID:            uuid.New(),
		Subject:       identity.Subject,
		DisplayName:   displayName,
		Handle:        handle,
		ProfilePicURL: DefaultProfilePicURL,
		Token:         auth.Fingerprint(token),
		CreatedAt:     s.policy.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered", zap.String("account_id", account.ID.String()), zap.String("handle", account.Handle))
	return account, nil
}

// Login registers token as an additional session of the identity's account.
// Logging in again with an already registered token is a no-op.
func (s *AccountService) Login(ctx context.Context, token string) (*Account, error) {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetAccountBySubject(ctx, identity.Subject)
	if err != nil {
		return nil, err
	}

	fingerprint := auth.Fingerprint(token)
	if !account.HasToken(fingerprint) {
		if err := s.repo.PushToken(ctx, account.ID, fingerprint); err != nil {
			return nil, err
		}
	}

	return s.GetAccount(ctx, account.ID)
}

// Logout removes token from the account that registered it.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	fingerprint := auth.Fingerprint(token)
	account, err := s.repo.GetAccountByToken(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrTokenNotRegistered
		}
		return err
	}
	return s.repo.PullToken(ctx, account.ID, fingerprint)
}

// Authenticate resolves a bearer token to its local account. A token the
// provider rejects yields the provider's error; a valid token that no account
// registered yields ErrTokenNotRegistered.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*Account, error) {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.GetAccountByToken(ctx, auth.Fingerprint(token))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrTokenNotRegistered
		}
		return nil, err
	}
	if account.Subject != identity.Subject {
		return nil, ErrTokenNotRegistered
	}

	s.policy.Filter(account)
	return account, nil
}

// GetAccount returns the account with expired stories hidden
func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.policy.Filter(account)
	return account, nil
}

// ListAccounts returns up to limit accounts, newest first
func (s *AccountService) ListAccounts(ctx context.Context, limit int) ([]*Account, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	accounts, err := s.repo.ListAccounts(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		s.policy.Filter(a)
	}
	return accounts, nil
}

// SearchAccounts matches query against handles and display names,
// case-insensitively and literally.
func (s *AccountService) SearchAccounts(ctx context.Context, query string, limit int) ([]*Account, error) {
	// Nothing longer than a display name can match.
	query = validator.SanitizeString(query, validator.MaxDisplayNameLen)
	if query == "" {
		return nil, &ValidationError{Field: "q", Message: "search query is required"}
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	accounts, err := s.repo.SearchAccounts(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		s.policy.Filter(a)
	}
	return accounts, nil
}

// UpdateProfilePicture points the actor's avatar at url
func (s *AccountService) UpdateProfilePicture(ctx context.Context, actor uuid.UUID, url string) (*Account, error) {
	if url == "" {
		return nil, &ValidationError{Field: "profilePicURL", Message: "url is required"}
	}
	if err := s.repo.SetProfilePicture(ctx, actor, url); err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, actor)
}
