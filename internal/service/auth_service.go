package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/llteacher/llteacher-api/internal/dto"
	"github.com/llteacher/llteacher-api/internal/models"
	"github.com/llteacher/llteacher-api/internal/repository"
)

// Account error sentinels surfaced to the HTTP layer.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmailDomainDenied  = errors.New("email domain not allowed")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// AuthService handles registration, login and profile management.
type AuthService interface {
	Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error)
	Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error)
	Profile(ctx context.Context, userID uuid.UUID) (dto.UserResponse, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, payload dto.ProfileUpdateRequest) (dto.UserResponse, error)
}

type authService struct {
	users          repository.UserRepository
	validator      *validator.Validate
	jwtSecret      string
	tokenTTL       time.Duration
	allowedDomains []string
	logger         zerolog.Logger
	now            func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users repository.UserRepository, validate *validator.Validate, jwtSecret string, tokenTTL time.Duration, allowedDomains []string, logger zerolog.Logger) AuthService {
	return &authService{
		users:          users,
		validator:      validate,
		jwtSecret:      jwtSecret,
		tokenTTL:       tokenTTL,
		allowedDomains: allowedDomains,
		logger:         logger.With().Str("component", "auth_service").Logger(),
		now:            time.Now,
	}
}

// IsEmailDomainAllowed reports whether the email's domain matches one of the
// allowed domains, either exactly or as a subdomain. An empty allow list
// accepts every syntactically valid address.
func IsEmailDomainAllowed(email string, allowedDomains []string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}

	if len(allowedDomains) == 0 {
		return true
	}

	domain := strings.ToLower(parts[1])
	for _, allowed := range allowedDomains {
		allowed = strings.ToLower(allowed)
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}

func (s *authService) Register(ctx context.Context, payload dto.RegisterRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	if !IsEmailDomainAllowed(payload.Email, s.allowedDomains) {
		return dto.AuthResponse{}, fmt.Errorf("%w: %s", ErrEmailDomainDenied, strings.Join(s.allowedDomains, ", "))
	}

	if _, err := s.users.GetByUsername(ctx, payload.Username); err == nil {
		return dto.AuthResponse{}, ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.AuthResponse{}, err
	}

	if _, err := s.users.GetByEmail(ctx, payload.Email); err == nil {
		return dto.AuthResponse{}, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.AuthResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		return dto.AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     payload.Username,
		Email:        strings.ToLower(payload.Email),
		PasswordHash: string(hash),
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Role:         models.Role(payload.Role),
	}

	if err := s.users.CreateWithProfile(ctx, &user); err != nil {
		return dto.AuthResponse{}, err
	}

	s.logger.Info().Str("user_id", user.ID.String()).Str("role", payload.Role).Msg("user registered")

	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := s.users.GetByUsername(ctx, payload.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AuthResponse{}, ErrInvalidCredentials
		}
		return dto.AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)); err != nil {
		return dto.AuthResponse{}, ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *authService) Profile(ctx context.Context, userID uuid.UUID) (dto.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID uuid.UUID, payload dto.ProfileUpdateRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, err
	}

	if payload.Email != nil && !strings.EqualFold(*payload.Email, user.Email) {
		if !IsEmailDomainAllowed(*payload.Email, s.allowedDomains) {
			return dto.UserResponse{}, fmt.Errorf("%w: %s", ErrEmailDomainDenied, strings.Join(s.allowedDomains, ", "))
		}
		if _, err := s.users.GetByEmail(ctx, *payload.Email); err == nil {
			return dto.UserResponse{}, ErrEmailTaken
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserResponse{}, err
		}
		user.Email = strings.ToLower(*payload.Email)
	}
	if payload.FirstName != nil {
		user.FirstName = *payload.FirstName
	}
	if payload.LastName != nil {
		user.LastName = *payload.LastName
	}

	if err := s.users.Update(ctx, &user); err != nil {
		return dto.UserResponse{}, err
	}

	return dto.NewUserResponse(user), nil
}

func (s *authService) issue(user models.User) (dto.AuthResponse, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"role":     string(user.Role),
		"iat":      now.Unix(),
		"exp":      now.Add(s.tokenTTL).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return dto.AuthResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return dto.AuthResponse{Token: token, User: dto.NewUserResponse(user)}, nil
}
