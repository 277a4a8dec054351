package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"docchat/internal/logging"
	"docchat/internal/model"
	"docchat/internal/pkg/jwtutil"
	"docchat/internal/repository"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidCredential = errors.New("invalid username or password")
)

// TenantPurger drops everything a service keeps for one tenant.
type TenantPurger interface {
	PurgeTenant(ctx context.Context, tenant string) error
}

type AuthConfig struct {
	AdminUsername string
	AdminPassword string
	JWTSecret     string
	JWTExpiration time.Duration
}

type AuthService struct {
	userRepo    *repository.UserRepository
	sessionRepo *repository.SessionRepository
	cfg         AuthConfig
	purgers     []TenantPurger
	logger      *slog.Logger
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(
	userRepo *repository.UserRepository,
	sessionRepo *repository.SessionRepository,
	cfg AuthConfig,
	purgers ...TenantPurger,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		cfg:         cfg,
		purgers:     purgers,
		logger:      logging.NewModuleLogger("auth", "service"),
	}
}

// AdminUsername is the uploader recorded for admin uploads.
func (s *AuthService) AdminUsername() string { return s.cfg.AdminUsername }

func (s *AuthService) AuthenticateAdmin(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.AdminPassword)) == 1
	return userOK && passOK
}

func (s *AuthService) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredential
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	if strings.TrimSpace(input.Username) == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.AuthenticateUser(ctx, input.Username, input.Password)
	if err != nil {
		return nil, err
	}

	token, err := jwtutil.GenerateToken(s.cfg.JWTSecret, s.cfg.JWTExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// UserFromToken resolves a bearer token to a user that still exists under the same name.
func (s *AuthService) UserFromToken(ctx context.Context, raw string) (*model.User, error) {
	claims, err := jwtutil.ParseToken(s.cfg.JWTSecret, raw)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Username != claims.Username {
		return nil, ErrInvalidCredential
	}
	return user, nil
}

func (s *AuthService) CreateUser(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}
	if username == model.PublicOwner || username == s.cfg.AdminUsername || strings.ContainsAny(username, `/\`) {
		return nil, ErrInvalidInput
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{Username: username, PasswordHash: string(hash)}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.userRepo.List(ctx)
}

func (s *AuthService) GetUser(ctx context.Context, username string) (*model.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, username, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidInput
	}
	user, err := s.GetUser(ctx, username)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password failed: %w", err)
	}
	return s.userRepo.UpdatePasswordHash(ctx, user.ID, string(hash))
}

// DeleteUser removes the account, its chat sessions and everything the purgers hold for the tenant.
// Purge failures are logged; the account is removed regardless.
func (s *AuthService) DeleteUser(ctx context.Context, username string) error {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		return err
	}

	for _, p := range s.purgers {
		if err := p.PurgeTenant(ctx, user.Username); err != nil {
			s.logger.Error("purge tenant failed", "tenant", user.Username, "err", err)
		}
	}
	if err := s.sessionRepo.DeleteByUserID(ctx, user.ID); err != nil {
		return err
	}
	return s.userRepo.DeleteByID(ctx, user.ID)
}
