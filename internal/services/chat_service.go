package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Creecly/cleaninvest/internal/database"
	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/logger"
	"github.com/Creecly/cleaninvest/internal/models"
	"github.com/Creecly/cleaninvest/internal/pagination"
	"github.com/Creecly/cleaninvest/internal/storage"
)

// System message texts.
const (
	msgRequestRegistered = "Your request has been registered, please wait for an administrator to join the chat"
	msgAdminJoinedFmt    = "An administrator (%s) has joined the chat"
	msgYouJoined         = "You have joined the chat"
	msgAdminLeft         = "The administrator has left the chat. Your request is back in the queue."
	msgChatClosed        = "The chat has been closed. If you need more help, send a new message."
	msgBalanceGrantFmt   = "The administrator added $%s to your balance. New balance: $%s"
)

// chatLockPrefix keeps chat-creation keys apart from the balance keys that
// share the same KeyedLocker.
const chatLockPrefix = "chat:"

// chatService drives the support chat lifecycle:
//
//	pending --join--> active --close--> closed
//	   ^                 |
//	   +------leave------+
//
// Transitions are compare-and-swap updates guarded on the current status
// (and, for an active chat, on the holding admin), so concurrent callers
// cannot both win.
type chatService struct {
	db    *gorm.DB
	store storage.Store
	locks *database.KeyedLocker
	audit AuditServicer
}

// NewChatService creates a new ChatServicer. store may be nil, in which case
// attachments are rejected. locks must be the locker shared with the ledger.
func NewChatService(db *gorm.DB, store storage.Store, locks *database.KeyedLocker, audit AuditServicer) ChatServicer {
	return &chatService{db: db, store: store, locks: locks, audit: audit}
}

func (s *chatService) loadUser(id string) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

func (s *chatService) requireAdmin(id string) (*models.User, error) {
	user, err := s.loadUser(id)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, apperrors.ErrForbidden
	}
	return user, nil
}

func findChat(db *gorm.DB, chatID string) (*models.SupportChat, error) {
	var chat models.SupportChat
	if err := db.First(&chat, "id = ?", chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrChatNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &chat, nil
}

func postSystemMessage(tx *gorm.DB, chatID, senderID, text string) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ChatID:   chatID,
		SenderID: senderID,
		Message:  text,
		IsSystem: true,
		IsRead:   true,
	}
	if err := tx.Create(msg).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return msg, nil
}

// withParticipants preloads the chat's user, and its admin's public fields.
func withParticipants(db *gorm.DB) *gorm.DB {
	return db.Preload("User").Preload("Admin", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "nickname", "name", "avatar_url", "is_admin", "created_at", "updated_at")
	})
}

// findOpenChat returns the user's active chat, else their pending chat.
func findOpenChat(db *gorm.DB, userID string) (*models.SupportChat, error) {
	var chats []models.SupportChat
	if err := db.Where("user_id = ? AND status IN ?", userID,
		[]models.ChatStatus{models.ChatStatusActive, models.ChatStatusPending}).
		Find(&chats).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var pending *models.SupportChat
	for i := range chats {
		if chats[i].Status == models.ChatStatusActive {
			return &chats[i], nil
		}
		if pending == nil {
			pending = &chats[i]
		}
	}
	return pending, nil
}

// Create returns the user's open chat, or opens a new pending one announced
// by a single system message.
func (s *chatService) Create(userID string) (*models.SupportChat, error) {
	if _, err := s.loadUser(userID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(chatLockPrefix + userID)
	defer unlock()

	var chat *models.SupportChat
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		chat, _, err = openChat(tx, userID)
		return err
	})
	if err != nil {
		// Lost a race with another instance on the open-chat unique index.
		if existing, findErr := findOpenChat(s.db, userID); findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return chat, nil
}

// openChat returns the user's open chat, creating a pending one when there is
// none. created reports whether a chat was inserted.
func openChat(tx *gorm.DB, userID string) (chat *models.SupportChat, created bool, err error) {
	existing, err := findOpenChat(tx, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	chat = &models.SupportChat{
		UserID:        userID,
		Status:        models.ChatStatusPending,
		WelcomePosted: true,
	}
	if err := tx.Omit(clause.Associations).Create(chat).Error; err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if _, err := postSystemMessage(tx, chat.ID, userID, msgRequestRegistered); err != nil {
		return nil, false, err
	}
	return chat, true, nil
}

// Get returns a chat visible to the caller: its own user or any admin.
func (s *chatService) Get(callerID, chatID string) (*models.SupportChat, error) {
	caller, err := s.loadUser(callerID)
	if err != nil {
		return nil, err
	}
	var chat models.SupportChat
	if err := withParticipants(s.db).First(&chat, "id = ?", chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrChatNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if chat.UserID != callerID && !caller.IsAdmin {
		return nil, apperrors.ErrForbidden
	}
	return &chat, nil
}

// Join claims a pending chat for the admin. Exactly one of several
// concurrent joiners wins; the rest get ErrChatUnavailable.
func (s *chatService) Join(adminID, chatID string) (*models.SupportChat, error) {
	admin, err := s.requireAdmin(adminID)
	if err != nil {
		return nil, err
	}

	var chat *models.SupportChat
	err = s.db.Transaction(func(tx *gorm.DB) error {
		current, err := findChat(tx, chatID)
		if err != nil {
			return err
		}
		if current.UserID == adminID {
			return apperrors.WithMessage(apperrors.ErrInvalidChatState, "You cannot join your own support request")
		}

		now := time.Now()
		swapped, err := database.CompareAndSwap(tx, &models.SupportChat{}, chatID,
			map[string]interface{}{"status": models.ChatStatusPending},
			map[string]interface{}{
				"status":          models.ChatStatusActive,
				"admin_id":        adminID,
				"admin_joined_at": now,
			})
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if !swapped {
			return apperrors.ErrChatUnavailable
		}

		if _, err := postSystemMessage(tx, chatID, current.UserID, fmt.Sprintf(msgAdminJoinedFmt, admin.Nickname)); err != nil {
			return err
		}
		if _, err := postSystemMessage(tx, chatID, adminID, msgYouJoined); err != nil {
			return err
		}

		chat, err = findChat(tx, chatID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("support chat joined", "chat_id", chatID, "admin_id", adminID)
	return chat, nil
}

// Leave hands the admin's active chat back to the pending queue.
func (s *chatService) Leave(adminID, chatID string) (*models.SupportChat, error) {
	if _, err := s.requireAdmin(adminID); err != nil {
		return nil, err
	}

	var chat *models.SupportChat
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := findChat(tx, chatID); err != nil {
			return err
		}
		swapped, err := database.CompareAndSwap(tx, &models.SupportChat{}, chatID,
			map[string]interface{}{"status": models.ChatStatusActive, "admin_id": adminID},
			map[string]interface{}{
				"status":          models.ChatStatusPending,
				"admin_id":        nil,
				"admin_joined_at": nil,
			})
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if !swapped {
			return apperrors.ErrInvalidChatState
		}

		if _, err := postSystemMessage(tx, chatID, adminID, msgAdminLeft); err != nil {
			return err
		}
		chat, err = findChat(tx, chatID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("support chat left", "chat_id", chatID, "admin_id", adminID)
	return chat, nil
}

// Close ends the admin's active chat. A closed chat is never reopened.
func (s *chatService) Close(adminID, chatID string) (*models.SupportChat, error) {
	if _, err := s.requireAdmin(adminID); err != nil {
		return nil, err
	}

	var chat *models.SupportChat
	err := s.db.Transaction(func(tx *gorm.DB) error {
		current, err := findChat(tx, chatID)
		if err != nil {
			return err
		}
		now := time.Now()
		swapped, err := database.CompareAndSwap(tx, &models.SupportChat{}, chatID,
			map[string]interface{}{"status": models.ChatStatusActive, "admin_id": adminID},
			map[string]interface{}{
				"status":    models.ChatStatusClosed,
				"closed_at": now,
				"admin_id":  nil,
			})
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if !swapped {
			if current.Status == models.ChatStatusActive && !current.HeldBy(adminID) {
				return apperrors.ErrForbidden
			}
			return apperrors.ErrInvalidChatState
		}

		if _, err := postSystemMessage(tx, chatID, adminID, msgChatClosed); err != nil {
			return err
		}
		chat, err = findChat(tx, chatID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("support chat closed", "chat_id", chatID, "admin_id", adminID)
	return chat, nil
}

// SendMessage posts a participant message. A user writing to their closed
// chat is moved to their open chat, which is created if needed.
func (s *chatService) SendMessage(callerID, chatID string, in MessageInput) (*SendResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Attachment == nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Message text is required")
	}
	if in.Attachment != nil {
		if s.store == nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidAttachment, "Attachments are disabled")
		}
		if !storage.AllowedExtension(in.Attachment.Filename) {
			return nil, apperrors.ErrInvalidAttachment
		}
	}

	caller, err := s.loadUser(callerID)
	if err != nil {
		return nil, err
	}
	chat, err := findChat(s.db, chatID)
	if err != nil {
		return nil, err
	}
	isUser := chat.UserID == callerID
	if !isUser && !(caller.IsAdmin && chat.HeldBy(callerID)) {
		return nil, apperrors.ErrForbidden
	}

	// The attachment is keyed on the sender so it can be stored before the
	// target chat is known.
	var stored *storage.Stored
	if in.Attachment != nil {
		stored, err = s.store.Save(context.Background(), "user_"+callerID, in.Attachment.Filename, in.Attachment.Content)
		if err != nil {
			return nil, attachmentError(err)
		}
	}

	moved := chat.Status == models.ChatStatusClosed
	if moved {
		unlock := s.locks.Lock(chatLockPrefix + callerID)
		defer unlock()
	}

	result := &SendResult{Moved: moved}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		targetID := chat.ID
		if moved {
			open, created, err := openChat(tx, callerID)
			if err != nil {
				return err
			}
			targetID = open.ID
			result.NewChat = created
		}

		var locked models.SupportChat
		if err := database.ForUpdate(tx).First(&locked, "id = ?", targetID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if locked.Status == models.ChatStatusClosed {
			return apperrors.ErrChatUnavailable
		}
		if !isUser && !locked.HeldBy(callerID) {
			return apperrors.ErrForbidden
		}

		if isUser && locked.Status == models.ChatStatusPending && !locked.WelcomePosted {
			if _, err := postSystemMessage(tx, locked.ID, callerID, msgRequestRegistered); err != nil {
				return err
			}
			if err := tx.Model(&locked).Update("welcome_posted", true).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		msg := &models.ChatMessage{
			ChatID:   locked.ID,
			SenderID: callerID,
			Message:  text,
		}
		if stored != nil {
			msg.AttachmentURL = stored.URL
			msg.AttachmentContentType = stored.ContentType
		}
		if err := tx.Create(msg).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		counter := "unread_user_count"
		if isUser {
			counter = "unread_admin_count"
		}
		if err := tx.Model(&models.SupportChat{}).Where("id = ?", locked.ID).
			Update(counter, gorm.Expr(counter+" + ?", 1)).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		result.Message = msg
		result.Chat, err = findChat(tx, locked.ID)
		return err
	})
	if err != nil {
		s.discardAttachment(stored)
		return nil, err
	}
	return result, nil
}

// discardAttachment removes a stored attachment whose message was never
// written.
func (s *chatService) discardAttachment(stored *storage.Stored) {
	if stored == nil {
		return
	}
	if err := s.store.Remove(stored.Name); err != nil {
		logger.Get().Warnw("failed to remove orphaned attachment", "name", stored.Name, "error", err)
	}
}

func attachmentError(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return apperrors.WithMessage(apperrors.ErrInvalidAttachment, "Attachment is too large")
	case errors.Is(err, storage.ErrExtensionNotAllowed),
		errors.Is(err, storage.ErrContentMismatch),
		errors.Is(err, storage.ErrEmpty):
		return apperrors.ErrInvalidAttachment
	default:
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
}

// ListMessages returns the chat's messages in order and marks the
// counterpart's messages read for the caller.
func (s *chatService) ListMessages(callerID, chatID string) ([]models.ChatMessage, error) {
	caller, err := s.loadUser(callerID)
	if err != nil {
		return nil, err
	}
	chat, err := findChat(s.db, chatID)
	if err != nil {
		return nil, err
	}
	isUser := chat.UserID == callerID
	if !isUser && !(caller.IsAdmin && chat.HeldBy(callerID)) {
		return nil, apperrors.ErrForbidden
	}

	var messages []models.ChatMessage
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ChatMessage{}).
			Where("chat_id = ? AND sender_id <> ? AND is_system = ? AND is_read = ?", chatID, callerID, false, false).
			Update("is_read", true).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		counter := "unread_admin_count"
		if isUser {
			counter = "unread_user_count"
		}
		if err := tx.Model(&models.SupportChat{}).Where("id = ?", chatID).Update(counter, 0).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Where("chat_id = ?", chatID).Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GrantBalance credits the chat user's wallet from the admin's active chat
// and records the new balance in a single system message.
func (s *chatService) GrantBalance(adminID, chatID string, amount decimal.Decimal) (*GrantResult, error) {
	if !amount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Amount must be greater than zero")
	}
	if _, err := s.requireAdmin(adminID); err != nil {
		return nil, err
	}
	chat, err := findChat(s.db, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Status != models.ChatStatusActive {
		return nil, apperrors.ErrInvalidChatState
	}
	if !chat.HeldBy(adminID) {
		return nil, apperrors.ErrForbidden
	}

	unlock := s.locks.Lock(chat.UserID)
	defer unlock()

	result := &GrantResult{Amount: amount}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var locked models.SupportChat
		if err := database.ForUpdate(tx).First(&locked, "id = ?", chatID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if locked.Status != models.ChatStatusActive || !locked.HeldBy(adminID) {
			return apperrors.ErrInvalidChatState
		}

		user, err := lockUser(tx, locked.UserID)
		if err != nil {
			return err
		}
		balance := user.Balance.Add(amount)
		if err := tx.Model(user).Update("balance", balance).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		entry := &models.LedgerEntry{
			UserID:       user.ID,
			Kind:         models.LedgerEntryChatGrant,
			ChatID:       &locked.ID,
			ActorID:      &adminID,
			Amount:       amount,
			BalanceAfter: balance,
		}
		if err := tx.Create(entry).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		text := fmt.Sprintf(msgBalanceGrantFmt, amount.StringFixed(2), balance.StringFixed(2))
		msg, err := postSystemMessage(tx, locked.ID, adminID, text)
		if err != nil {
			return err
		}

		result.Balance = balance
		result.Message = msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(adminID, AuditActionChatGrant, "user", chat.UserID, "", map[string]interface{}{
		"chat_id":     chatID,
		"amount":      amount.String(),
		"new_balance": result.Balance.String(),
	})
	logger.Get().Infow("balance granted from support chat",
		"chat_id", chatID, "admin_id", adminID, "user_id", chat.UserID, "amount", amount.String())
	return result, nil
}

// ListPending returns the queue of unclaimed chats, oldest first.
func (s *chatService) ListPending(callerID string) ([]models.SupportChat, error) {
	if _, err := s.requireAdmin(callerID); err != nil {
		return nil, err
	}
	var chats []models.SupportChat
	if err := withParticipants(s.db).
		Where("status = ?", models.ChatStatusPending).
		Order("created_at ASC").
		Find(&chats).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return chats, nil
}

// ListActive returns the active chats an admin holds, or a user's own
// active chat.
func (s *chatService) ListActive(callerID string) ([]models.SupportChat, error) {
	caller, err := s.loadUser(callerID)
	if err != nil {
		return nil, err
	}
	q := withParticipants(s.db).Where("status = ?", models.ChatStatusActive)
	if caller.IsAdmin {
		q = q.Where("admin_id = ?", callerID)
	} else {
		q = q.Where("user_id = ?", callerID)
	}
	var chats []models.SupportChat
	if err := q.Order("admin_joined_at ASC").Find(&chats).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return chats, nil
}

// ListClosed returns closed chats, most recently closed first.
func (s *chatService) ListClosed(callerID string, page pagination.PageRequest) (*pagination.PageResponse[models.SupportChat], error) {
	if _, err := s.requireAdmin(callerID); err != nil {
		return nil, err
	}
	page.Defaults()

	var total int64
	if err := s.db.Model(&models.SupportChat{}).Where("status = ?", models.ChatStatusClosed).Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var chats []models.SupportChat
	if err := withParticipants(s.db).
		Where("status = ?", models.ChatStatusClosed).
		Order("closed_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&chats).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	resp := pagination.NewPageResponse(chats, page.Page, page.PageSize, total)
	return &resp, nil
}

// UnreadCount is, for a user, the unread messages addressed to them in
// their active chat and, for an admin, the unread messages across the chats
// they hold.
func (s *chatService) UnreadCount(callerID string) (int64, error) {
	caller, err := s.loadUser(callerID)
	if err != nil {
		return 0, err
	}

	var count int64
	if caller.IsAdmin {
		var sum struct{ Total int64 }
		if err := s.db.Model(&models.SupportChat{}).
			Select("COALESCE(SUM(unread_admin_count), 0) AS total").
			Where("admin_id = ? AND status = ?", callerID, models.ChatStatusActive).
			Scan(&sum).Error; err != nil {
			return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return sum.Total, nil
	}

	if err := s.db.Model(&models.ChatMessage{}).
		Joins("JOIN support_chats ON support_chats.id = chat_messages.chat_id").
		Where("support_chats.user_id = ? AND support_chats.status = ?", callerID, models.ChatStatusActive).
		Where("chat_messages.sender_id <> ? AND chat_messages.is_system = ? AND chat_messages.is_read = ?", callerID, false, false).
		Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count, nil
}
