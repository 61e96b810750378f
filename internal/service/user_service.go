package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/tamimiqbalfysal/Today-2.2.5/internal/common"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/errors"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/model"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserService 处理与用户身份相关的业务逻辑
type UserService struct {
	store          interfaces.DocStore
	emailService   *EmailService
	tokenBlacklist map[string]time.Time
	blacklistMutex sync.RWMutex
}

// NewUserService 创建一个新的 UserService 实例
// emailService 可以为 nil，此时不发送欢迎邮件
func NewUserService(store interfaces.DocStore, emailService *EmailService) *UserService {
	return &UserService{
		store:          store,
		emailService:   emailService,
		tokenBlacklist: make(map[string]time.Time),
	}
}

// Register 注册新用户：初始积分为 0，关注集合为空
// 用户文档和邮箱索引在同一个原子提交内写入，防止并发注册同一邮箱
func (s *UserService) Register(ctx context.Context, name, username, email, password, country string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		UID:           util.NewID(),
		Username:      username,
		Name:          name,
		Email:         email,
		PasswordHash:  string(hashedPassword),
		Country:       country,
		Credits:       0,
		Followers:     []string{},
		Following:     []string{},
		Notifications: []model.Notification{},
		CreatedAt:     time.Now(),
	}

	err = common.WithRetry(func() error {
		tx := newTxn(s.store)

		existing, err := tx.getEmailIndex(ctx, email)
		if err != nil {
			return err
		}
		if existing != "" {
			return errors.New(errors.ErrUserExists, "该邮箱已被注册")
		}

		if err := tx.putEmailIndex(email, user.UID); err != nil {
			return err
		}
		if err := tx.putUser(user); err != nil {
			return err
		}
		return tx.commit(ctx)
	}, defaultMaxRetries)
	if err == interfaces.ErrVersionConflict {
		return nil, errors.New(errors.ErrResourceConflict, "操作冲突，请稍后重试")
	}
	if err != nil {
		return nil, err
	}

	util.Logger.Info("用户注册成功",
		zap.String("uid", user.UID),
		zap.String("username", username))

	// 发送欢迎邮件（异步，失败不影响注册）
	if s.emailService != nil {
		s.emailService.SendWelcomeEmail(email, name)
	}
	return user, nil
}

// Login 用户登录，验证邮箱和密码
func (s *UserService) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	tx := newTxn(s.store)
	uid, err := tx.getEmailIndex(ctx, email)
	if err != nil {
		return nil, err
	}
	if uid == "" {
		return nil, errors.New(errors.ErrInvalidCredentials, "邮箱或密码不正确")
	}

	user, err := tx.getUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New(errors.ErrUserNotFound, "用户不存在")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		util.Logger.Warn("用户登录失败，密码不正确", zap.String("email", email))
		return nil, errors.New(errors.ErrInvalidCredentials, "邮箱或密码不正确")
	}

	util.Logger.Info("用户登录成功", zap.String("uid", user.UID))
	return user, nil
}

// GetUserByUID 通过UID获取用户信息
func (s *UserService) GetUserByUID(ctx context.Context, uid string) (*model.User, error) {
	doc, err := s.store.Get(ctx, userKey(uid))
	if err != nil {
		return nil, err
	}
	if doc.Body == nil {
		return nil, errors.New(errors.ErrUserNotFound, "用户不存在")
	}

	var user model.User
	if err := json.Unmarshal(doc.Body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile 更新用户资料（只允许修改展示字段）
func (s *UserService) UpdateProfile(ctx context.Context, uid, name, photoURL, country string) error {
	err := common.WithRetry(func() error {
		tx := newTxn(s.store)

		user, err := tx.getUser(ctx, uid)
		if err != nil {
			return err
		}
		if user == nil {
			return errors.New(errors.ErrUserNotFound, "用户不存在")
		}

		if name != "" {
			user.Name = name
		}
		if photoURL != "" {
			user.PhotoURL = photoURL
		}
		if country != "" {
			user.Country = country
		}

		if err := tx.putUser(user); err != nil {
			return err
		}
		return tx.commit(ctx)
	}, defaultMaxRetries)
	if err == interfaces.ErrVersionConflict {
		return errors.New(errors.ErrResourceConflict, "操作冲突，请稍后重试")
	}
	if err != nil {
		return err
	}

	util.Logger.Info("用户资料更新成功", zap.String("uid", uid))
	return nil
}

// BlacklistToken 将令牌加入黑名单（登出）
func (s *UserService) BlacklistToken(token string) {
	s.blacklistMutex.Lock()
	defer s.blacklistMutex.Unlock()
	s.tokenBlacklist[token] = time.Now().Add(24 * time.Hour)

	// 顺便清理已过期的条目
	now := time.Now()
	for t, expiry := range s.tokenBlacklist {
		if expiry.Before(now) {
			delete(s.tokenBlacklist, t)
		}
	}
}

// IsTokenBlacklisted 检查令牌是否已被撤销
func (s *UserService) IsTokenBlacklisted(token string) bool {
	s.blacklistMutex.RLock()
	defer s.blacklistMutex.RUnlock()

	expiry, ok := s.tokenBlacklist[token]
	return ok && expiry.After(time.Now())
}
