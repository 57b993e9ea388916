package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/premunia/leadline/internal/apperr"
	"github.com/premunia/leadline/internal/auth"
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

const invalidCredentials = "Invalid credentials"

// Repository is the storage the Service needs. *Store implements it.
type Repository interface {
	Create(ctx context.Context, in CreateUserInput) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetActiveByEmail(ctx context.Context, email string) (*User, error)
	GetRole(ctx context.Context, userID string) (string, error)
	SetRole(ctx context.Context, userID, role string) error
	IDByEmail(ctx context.Context, email string) (string, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID, email, role string) (string, error)
}

// Service implements signup, signin and role management.
type Service struct {
	repo   Repository
	tokens TokenIssuer
	cost   int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService creates a new user service.
func NewService(repo Repository, tokens TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens, cost: bcrypt.DefaultCost}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword validates and hashes a plaintext password.
func (s *Service) HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", apperr.Validation("Password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Validation("Password must be at most 72 bytes")
		}
		return "", apperr.Internal(fmt.Errorf("hashing password: %w", err))
	}
	return string(hash), nil
}

// Signup registers a new user and returns a session for them.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.Create(ctx, CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, apperr.Conflict("Email already exists")
		}
		return nil, apperr.Internal(err)
	}
	u.Role = auth.RoleUser

	return s.session(u)
}

// Signin checks credentials and returns a session. Unknown emails, inactive
// accounts and wrong passwords all fail with the same message.
func (s *Service) Signin(ctx context.Context, in SigninInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	u, err := s.repo.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a comparison so response time does not reveal the miss.
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(in.Password))
			return nil, apperr.Auth(invalidCredentials)
		}
		return nil, apperr.Internal(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return nil, apperr.Auth(invalidCredentials)
	}

	role, err := s.repo.GetRole(ctx, u.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u.Role = role

	return s.session(u)
}

// Me re-reads the caller's profile and role from the store.
func (s *Service) Me(ctx context.Context, id *auth.Identity) (*User, error) {
	if id == nil {
		return nil, apperr.Auth("Access token required")
	}

	u, err := s.repo.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err)
	}

	role, err := s.repo.GetRole(ctx, u.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u.Role = role
	return u, nil
}

// SetRole assigns a role to a user and returns the updated profile.
func (s *Service) SetRole(ctx context.Context, userID, role string) (*User, error) {
	if !auth.ValidRole(role) {
		return nil, apperr.Validation("Role must be one of: user, admin")
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperr.NotFound("User not found")
	}

	if err := s.repo.SetRole(ctx, userID, role); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err)
	}

	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u.Role = role
	return u, nil
}

// SetRoleByEmail is SetRole keyed by email, used by the CLI.
func (s *Service) SetRoleByEmail(ctx context.Context, email, role string) (*User, error) {
	id, err := s.repo.IDByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err)
	}
	return s.SetRole(ctx, id, role)
}

func (s *Service) session(u *User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{User: u, Token: token}, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("leadline-dummy-password"), s.cost)
	})
	return s.dummyHash
}
