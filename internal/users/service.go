package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberlabs/ember/backend/internal/auth"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates an account already exists for the email.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrInvalidTimezone indicates a timezone that is not a loadable IANA zone.
	ErrInvalidTimezone = errors.New("users: invalid timezone")
	// ErrUserNotFound indicates no account exists for the identifier.
	ErrUserNotFound = errors.New("users: user not found")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user accounts and credential verification.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// RegisterParams carries the fields required to create an account.
type RegisterParams struct {
	Username string
	Email    string
	Password string
	Timezone string
}

func (p RegisterParams) validate() error {
	if normalize(p.Username) == "" {
		return fmt.Errorf("users: username is required")
	}
	if normalize(p.Email) == "" {
		return fmt.Errorf("users: email is required")
	}
	if p.Password == "" {
		return fmt.Errorf("users: password is required")
	}
	if normalize(p.Timezone) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTimezone)
	}
	if _, err := time.LoadLocation(normalize(p.Timezone)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, p.Timezone)
	}
	return nil
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, params RegisterParams) (User, error) {
	if err := params.validate(); err != nil {
		return User{}, err
	}

	email := strings.ToLower(normalize(params.Email))

	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return User{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, err
	}

	passwordHash, err := auth.HashPassword(params.Password)
	if err != nil {
		return User{}, err
	}

	userID, err := uuid.NewV7()
	if err != nil {
		return User{}, err
	}

	user := User{
		UserID:       userID.String(),
		Username:     normalize(params.Username),
		Email:        email,
		PasswordHash: passwordHash,
		Timezone:     normalize(params.Timezone),
		CreatedAt:    s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies the email/password pair and returns the account.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(normalize(email))).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns the account for the identifier.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}
