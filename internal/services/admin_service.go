package services

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Creecly/cleaninvest/internal/database"
	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/logger"
	"github.com/Creecly/cleaninvest/internal/models"
	"github.com/Creecly/cleaninvest/internal/notify"
	"github.com/Creecly/cleaninvest/internal/pagination"
)

// adminService implements the admin panel operations.
type adminService struct {
	db     *gorm.DB
	locks  *database.KeyedLocker
	audit  AuditServicer
	mailer Mailer
}

// NewAdminService creates a new AdminServicer. locks must be the locker
// shared with the ledger.
func NewAdminService(db *gorm.DB, locks *database.KeyedLocker, audit AuditServicer, mailer Mailer) AdminServicer {
	return &adminService{db: db, locks: locks, audit: audit, mailer: mailer}
}

func (s *adminService) userByNickname(nickname string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("nickname = ?", strings.TrimSpace(nickname)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// requireOwner checks the actor's owner flag in the database.
func (s *adminService) requireOwner(actorID string) error {
	var actor models.User
	if err := s.db.First(&actor, "id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrForbidden
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !actor.IsOwner {
		return apperrors.ErrForbidden
	}
	return nil
}

// ListUsers returns users ordered by registration, optionally filtered by a
// nickname, name or email substring.
func (s *adminService) ListUsers(search string, page pagination.PageRequest) (*pagination.PageResponse[models.User], error) {
	page.Defaults()

	search = strings.ToLower(strings.TrimSpace(search))
	filter := func(db *gorm.DB) *gorm.DB {
		if search == "" {
			return db
		}
		like := "%" + search + "%"
		return db.Where("LOWER(nickname) LIKE ? OR LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}

	var total int64
	if err := s.db.Model(&models.User{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var users []models.User
	if err := s.db.Scopes(filter).Order("created_at ASC").Scopes(pagination.Paginate(page)).Find(&users).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	resp := pagination.NewPageResponse(users, page.Page, page.PageSize, total)
	return &resp, nil
}

// GetUserInfo returns a user with their active positions and chat count.
func (s *adminService) GetUserInfo(userID string) (*UserInfo, error) {
	var info UserInfo
	if err := s.db.First(&info.User, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.db.Preload("Company").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("purchase_date DESC").
		Find(&info.ActivePositions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if info.ActivePositions == nil {
		info.ActivePositions = []models.Position{}
	}
	if err := s.db.Model(&models.SupportChat{}).Where("user_id = ?", userID).Count(&info.ChatCount).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &info, nil
}

// AdjustBalance adds delta (which may be negative) to a user's balance and
// records an admin_adjustment ledger entry. Investment counters are not
// touched.
func (s *adminService) AdjustBalance(actorID, nickname string, delta decimal.Decimal, ipAddress string) (*models.User, error) {
	if delta.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must not be zero")
	}
	target, err := s.userByNickname(nickname)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(target.ID)
	defer unlock()

	var updated *models.User
	var before decimal.Decimal
	err = s.db.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, target.ID)
		if err != nil {
			return err
		}
		before = user.Balance
		balance := user.Balance.Add(delta)
		if err := tx.Model(user).Update("balance", balance).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		entry := &models.LedgerEntry{
			UserID:       user.ID,
			Kind:         models.LedgerEntryAdminAdjustment,
			ActorID:      &actorID,
			Amount:       delta,
			BalanceAfter: balance,
		}
		if err := tx.Create(entry).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		user.Balance = balance
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(actorID, AuditActionAdjustBalance, "user", updated.ID, ipAddress, map[string]interface{}{
		"old_balance": before.String(),
		"new_balance": updated.Balance.String(),
		"delta":       delta.String(),
	})
	return updated, nil
}

// AssignAdmin grants admin rights. Only the owner may do this.
func (s *adminService) AssignAdmin(actorID, nickname, ipAddress string) (*models.User, error) {
	if err := s.requireOwner(actorID); err != nil {
		return nil, err
	}
	user, err := s.userByNickname(nickname)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin {
		return nil, apperrors.ErrAlreadyAdmin
	}
	if err := s.db.Model(user).Update("is_admin", true).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	user.IsAdmin = true

	s.audit.Log(actorID, AuditActionAssignAdmin, "user", user.ID, ipAddress, nil)
	return user, nil
}

// RemoveAdmin revokes admin rights. Only the owner may do this, and the
// owner's own rights cannot be removed.
func (s *adminService) RemoveAdmin(actorID, nickname, ipAddress string) (*models.User, error) {
	if err := s.requireOwner(actorID); err != nil {
		return nil, err
	}
	user, err := s.userByNickname(nickname)
	if err != nil {
		return nil, err
	}
	if user.IsOwner {
		return nil, apperrors.ErrOwnerImmutable
	}
	if !user.IsAdmin {
		return nil, apperrors.ErrNotAdmin
	}
	if err := s.db.Model(user).Update("is_admin", false).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	user.IsAdmin = false

	s.audit.Log(actorID, AuditActionRemoveAdmin, "user", user.ID, ipAddress, nil)
	return user, nil
}

// Stats aggregates balances and counters across the platform.
func (s *adminService) Stats() (*PlatformStats, error) {
	var sums struct {
		Users    int64
		Balance  decimal.NullDecimal
		Invested decimal.NullDecimal
		Profit   decimal.NullDecimal
	}
	if err := s.db.Model(&models.User{}).
		Select("COUNT(*) AS users, SUM(balance) AS balance, SUM(total_invested) AS invested, SUM(total_profit) AS profit").
		Scan(&sums).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	stats := &PlatformStats{
		TotalUsers:    sums.Users,
		TotalBalance:  sums.Balance.Decimal,
		TotalInvested: sums.Invested.Decimal,
		TotalProfit:   sums.Profit.Decimal,
	}
	if err := s.db.Model(&models.Position{}).Where("is_active = ?", true).Count(&stats.ActivePositions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.db.Model(&models.SupportChat{}).
		Where("status IN ?", []models.ChatStatus{models.ChatStatusPending, models.ChatStatusActive}).
		Count(&stats.OpenChats).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return stats, nil
}

// SendBulkEmail queues an announcement and returns how many messages were
// accepted by the mail queue.
func (s *adminService) SendBulkEmail(in BulkEmailInput) (int, error) {
	subject := strings.TrimSpace(in.Subject)
	body := strings.TrimSpace(in.Body)
	if subject == "" || body == "" {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "subject and message are required")
	}

	var recipients []string
	q := s.db.Model(&models.User{})
	if !in.SendToAll {
		var wanted []string
		for _, r := range in.Recipients {
			if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
				wanted = append(wanted, r)
			}
		}
		if len(wanted) == 0 {
			return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "at least one recipient is required")
		}
		q = q.Where("email IN ?", wanted)
	}
	if err := q.Order("created_at ASC").Pluck("email", &recipients).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	queued := 0
	for _, to := range recipients {
		if s.mailer.Enqueue(notify.Message{To: to, Subject: subject, Body: body}) {
			queued++
		}
	}
	logger.Get().Infow("bulk email queued", "recipients", len(recipients), "queued", queued)
	return queued, nil
}
