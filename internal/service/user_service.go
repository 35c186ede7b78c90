package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/repository"
)

// UserService 目录操作员（admin / editor）管理，仅 admin 调用
type UserService interface {
	ListUsers(ctx context.Context) ([]*domain.User, error)
	// CreateUser login 唯一；密码以 bcrypt 存储
	CreateUser(ctx context.Context, p *domain.Principal, req CreateUserRequest) (*domain.User, error)
	// ToggleUser 切换 is_active，不能切换自己
	ToggleUser(ctx context.Context, p *domain.Principal, id int64) (*domain.User, error)
	// Lookup 按 id 查询（身份校验用）
	Lookup(ctx context.Context, id int64) (*domain.User, error)
	// EnsureAdmin users 表为空时创建初始 admin
	EnsureAdmin(ctx context.Context, login, password string) error
}

// CreateUserRequest 新建用户
type CreateUserRequest struct {
	Login    string      `json:"login"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

type userService struct {
	store  repository.Store
	audit  *AuditService
	cost   int
	logger *zap.Logger
}

// NewUserService 创建 UserService
func NewUserService(s repository.Store, audit *AuditService, logger *zap.Logger) UserService {
	return &userService{
		store:  s,
		audit:  audit,
		cost:   bcrypt.DefaultCost,
		logger: logger,
	}
}

func (s *userService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.store.Repos().Users.ListUsers(ctx)
}

func (s *userService) Lookup(ctx context.Context, id int64) (*domain.User, error) {
	return s.store.Repos().Users.GetUser(ctx, id)
}

// hashPassword bcrypt 只使用前 72 字节，更长的密码直接拒绝
func (s *userService) hashPassword(password string) (string, error) {
	if password == "" {
		return "", domain.Validationf("password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", domain.Validationf("password is too long")
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

func (s *userService) CreateUser(ctx context.Context, p *domain.Principal, req CreateUserRequest) (*domain.User, error) {
	login := strings.TrimSpace(req.Login)
	if err := domain.ValidateLogin(login); err != nil {
		return nil, err
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(string(req.Role))))
	if err := domain.ValidateUserRole(role); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &domain.User{Login: login, PasswordHash: hash, Role: role, IsActive: true}
	var entry *domain.AuditLog
	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		id, err := r.Users.CreateUser(ctx, u)
		if err != nil {
			return err
		}
		u.ID = id
		entry, err = s.audit.Record(ctx, r, p, domain.ActionCreate, domain.EntityUser, id, map[string]any{
			"login": login,
			"role":  role,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Created user", zap.Int64("user_id", u.ID), zap.String("login", login), zap.String("role", string(role)))
	s.audit.Mirror(ctx, entry)
	return u, nil
}

func (s *userService) ToggleUser(ctx context.Context, p *domain.Principal, id int64) (*domain.User, error) {
	if p != nil && p.UserID == id {
		return nil, domain.Validationf("cannot toggle your own account")
	}

	var (
		u     *domain.User
		entry *domain.AuditLog
	)
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		if u, err = r.Users.GetUser(ctx, id); err != nil {
			return err
		}
		u.IsActive = !u.IsActive
		if err := r.Users.SetUserActive(ctx, id, u.IsActive); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, r, p, domain.ActionToggle, domain.EntityUser, id, map[string]bool{"is_active": u.IsActive})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Toggled user", zap.Int64("user_id", id), zap.Bool("is_active", u.IsActive))
	s.audit.Mirror(ctx, entry)
	return u, nil
}

func (s *userService) EnsureAdmin(ctx context.Context, login, password string) error {
	if login == "" || password == "" {
		return nil
	}
	users, err := s.store.Repos().Users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	_, err = s.CreateUser(ctx, nil, CreateUserRequest{Login: login, Password: password, Role: domain.RoleAdmin})
	return err
}
