// Package accounts registers users and checks their passwords with bcrypt.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auctions/internal/biddingerrors"
	"auctions/internal/models"
	"auctions/utils"

	"golang.org/x/crypto/bcrypt"
)

// UserStorage is the slice of the repository the account service needs.
type UserStorage interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// AccountService implements registration and password login.
type AccountService struct {
	storage UserStorage
	cost    int
}

// NewAccountService creates an account service hashing at the given bcrypt
// cost. A cost of zero selects bcrypt.DefaultCost.
func NewAccountService(storage UserStorage, cost int) *AccountService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AccountService{storage: storage, cost: cost}
}

// Register creates a new user account with a hashed password.
func (s *AccountService) Register(ctx context.Context, reg models.Registration) (models.User, error) {
	username := strings.TrimSpace(reg.Username)
	if username == "" || reg.Password == "" {
		return models.User{}, fmt.Errorf("accounts: %w - username and password are required", biddingerrors.ErrInvalidUser)
	}
	if reg.Password != reg.Confirmation {
		return models.User{}, fmt.Errorf("accounts: %w - passwords must match", biddingerrors.ErrInvalidUser)
	}
	// bcrypt ignores everything past 72 bytes and refuses longer input
	if len(reg.Password) > 72 {
		return models.User{}, fmt.Errorf("accounts: %w - password longer than 72 bytes", biddingerrors.ErrInvalidUser)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("accounts: failed to hash password: %w", err)
	}

	user := models.User{
		UserID:       utils.GenerateID(),
		Username:     username,
		Email:        strings.TrimSpace(reg.Email),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("accounts: failed to create user %s: %w", username, err)
	}
	return user, nil
}

// Authenticate verifies the username and password, returning the user if valid.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.storage.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, biddingerrors.ErrUserNotFound) {
		return models.User{}, fmt.Errorf("accounts: %w", biddingerrors.ErrInvalidCredentials)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("accounts: failed to look up %s: %w", username, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, fmt.Errorf("accounts: %w", biddingerrors.ErrInvalidCredentials)
	}
	return user, nil
}
