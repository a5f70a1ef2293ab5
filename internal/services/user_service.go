package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/logger"
	"github.com/Creecly/cleaninvest/internal/models"
	"github.com/Creecly/cleaninvest/internal/notify"
)

const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
)

// UserSettings carries the account defaults applied at registration.
type UserSettings struct {
	StartingBalance decimal.Decimal
	// OwnerNickname, when set, marks the account registered under that
	// nickname as admin and owner.
	OwnerNickname string
}

// userService handles user-related business logic.
type userService struct {
	db       *gorm.DB
	settings UserSettings
	mailer   Mailer
}

// NewUserService creates a new UserServicer. mailer may be nil.
func NewUserService(db *gorm.DB, settings UserSettings, mailer Mailer) UserServicer {
	return &userService{db: db, settings: settings, mailer: mailer}
}

// Register creates a new account and queues the welcome email.
func (s *userService) Register(in RegisterInput) (*models.User, error) {
	nickname := strings.TrimSpace(in.Nickname)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if nickname == "" || email == "" || in.Password == "" || name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "nickname, name, email and password are required")
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("nickname = ?", nickname).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.ErrDuplicateNickname
	}
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.ErrDuplicateEmail
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	isOwner := s.settings.OwnerNickname != "" && nickname == s.settings.OwnerNickname
	user := &models.User{
		Nickname: nickname,
		Name:     name,
		Email:    email,
		Password: string(hashedPassword),
		Balance:  s.settings.StartingBalance,
		IsAdmin:  isOwner,
		IsOwner:  isOwner,
	}

	if err := s.db.Create(user).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if s.mailer != nil {
		s.mailer.Enqueue(notify.WelcomeMessage(user.Email, user.Name))
	}
	logger.Get().Infow("user registered", "user_id", user.ID, "nickname", user.Nickname, "owner", isOwner)

	return user, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// GetUserByNickname retrieves a user by nickname
func (s *userService) GetUserByNickname(nickname string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("nickname = ?", strings.TrimSpace(nickname)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// VerifyPassword checks if the provided password matches the stored hash
func (s *userService) VerifyPassword(user *models.User, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	return err == nil
}

// AttemptLogin checks credentials and applies the lockout policy: five
// consecutive failures lock the account for fifteen minutes. Unknown
// nicknames and wrong passwords return the same error.
func (s *userService) AttemptLogin(nickname, password string) (*models.User, error) {
	user, err := s.GetUserByNickname(nickname)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, apperrors.ErrAccountLocked
	}

	if !s.VerifyPassword(user, password) {
		updates := map[string]interface{}{
			"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
		}
		if user.FailedLoginAttempts+1 >= maxFailedLogins {
			updates["locked_until"] = now.Add(lockoutDuration)
			updates["failed_login_attempts"] = 0
			logger.Get().Warnw("account locked after repeated login failures", "user_id", user.ID)
		}
		if err := s.db.Model(user).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.db.Model(user).Updates(map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now,
	}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	return user, nil
}

// StoreRefreshTokenHash saves the hash of the user's current refresh token.
// An empty hash revokes it.
func (s *userService) StoreRefreshTokenHash(userID string, tokenHash string) error {
	res := s.db.Model(&models.User{}).Where("id = ?", userID).Update("refresh_token_hash", tokenHash)
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// GetRefreshTokenHash returns the stored refresh token hash.
func (s *userService) GetRefreshTokenHash(userID string) (string, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return "", err
	}
	return user.RefreshTokenHash, nil
}

// UpdateProfile applies the non-nil fields of in.
func (s *userService) UpdateProfile(userID string, in ProfileUpdate) (*models.User, error) {
	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if len(name) < 2 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "name must be at least 2 characters")
		}
		updates["name"] = name
	}
	if in.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*in.FullName)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}

	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return s.GetUserByID(userID)
}

// SetAvatar stores the avatar URL chosen by the user.
func (s *userService) SetAvatar(userID, avatarURL string) (*models.User, error) {
	avatarURL = strings.TrimSpace(avatarURL)
	if avatarURL == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "avatar url is required")
	}
	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(user).Update("avatar_url", avatarURL).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	user.AvatarURL = avatarURL
	return user, nil
}
