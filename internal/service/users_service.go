package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/internal/repository"
	"github.com/Tonic56/stock-trading-simulator/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type UsersService interface {
	Register(ctx context.Context, username, password, confirmation string) (*models.User, error)
	VerifyCredential(ctx context.Context, username, password string) (*models.User, error)
	SetCredential(ctx context.Context, userID uuid.UUID, newPassword string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, confirmation string) error
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type usersService struct {
	repo        repository.UsersRepository
	initialCash decimal.Decimal
	cost        int
}

// NewUsersService hashes passwords with the given bcrypt cost; new accounts
// start with initialCash.
func NewUsersService(repo repository.UsersRepository, initialCash decimal.Decimal, cost int) UsersService {
	return &usersService{
		repo:        repo,
		initialCash: initialCash,
		cost:        cost,
	}
}

// ValidatePassword enforces the password policy: at least eight characters,
// one ASCII digit and one ASCII uppercase letter. Length counts runes.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return errs.ErrCredentialPolicy
	}

	var hasDigit, hasUpper bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		}
	}

	if !hasDigit || !hasUpper {
		return errs.ErrCredentialPolicy
	}
	return nil
}

func (s *usersService) Register(_ context.Context, username, password, confirmation string) (*models.User, error) {
	if username == "" || password == "" || confirmation == "" {
		return nil, errs.ErrMissingField
	}

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	if password != confirmation {
		return nil, errs.ErrCredentialMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("service.users.Register: hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Cash:         s.initialCash,
	}

	if err := s.repo.CreateUser(user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *usersService) VerifyCredential(_ context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, errs.ErrMissingField
	}

	user, err := s.repo.GetUserByName(username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errs.ErrInvalidCredentials
	}

	return user, nil
}

func (s *usersService) SetCredential(_ context.Context, userID uuid.UUID, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("service.users.SetCredential: hash password: %w", err)
	}

	return s.repo.UpdatePasswordHash(userID, string(hash))
}

func (s *usersService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword, confirmation string) error {
	if oldPassword == "" || newPassword == "" || confirmation == "" {
		return errs.ErrMissingField
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return errs.ErrCredentialMismatch
	}

	if newPassword != confirmation {
		return errs.ErrCredentialMismatch
	}

	return s.SetCredential(ctx, userID, newPassword)
}

func (s *usersService) GetUser(_ context.Context, userID uuid.UUID) (*models.User, error) {
	return s.repo.GetUserByID(userID)
}
