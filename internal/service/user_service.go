package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/repository"
	"github.com/codeclash/codeclash-backend/pkg/jwt"
)

// UserService 사용자 인증/조회 서비스
type UserService struct {
	users  *repository.UserRepository
	jwtMgr *jwt.JWTManager
	logger *zap.Logger
}

func NewUserService(users *repository.UserRepository, jwtMgr *jwt.JWTManager) *UserService {
	logger, _ := zap.NewProduction()
	return &UserService{
		users:  users,
		jwtMgr: jwtMgr,
		logger: logger,
	}
}

// Register 회원가입
func (s *UserService) Register(username, email, password string) (*models.User, string, error) {
	if username == "" || email == "" || len(password) < 8 {
		return nil, "", fmt.Errorf("%w: username, email and a password of at least 8 characters are required", ErrInvalidInput)
	}

	existing, err := s.users.FindByEmail(email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, "", ErrUserAlreadyExists
	}

	existing, err = s.users.FindByUsername(username)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, "", ErrUserAlreadyExists
	}

	hash, err := models.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.Create(username, email, hash)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.jwtMgr.Generate(user.ID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User registered",
		zap.String("userId", user.ID),
		zap.String("username", user.Username))

	return user, token, nil
}

// Login 로그인
func (s *UserService) Login(email, password string) (*models.User, string, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !user.CheckPassword(password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwtMgr.Generate(user.ID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	return user, token, nil
}

// GetByID ID로 사용자 조회
func (s *UserService) GetByID(id string) (*models.User, error) {
	user, err := s.users.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
