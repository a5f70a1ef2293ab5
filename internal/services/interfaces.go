package services

import (
	"io"

	"github.com/shopspring/decimal"

	"github.com/Creecly/cleaninvest/internal/models"
	"github.com/Creecly/cleaninvest/internal/notify"
	"github.com/Creecly/cleaninvest/internal/pagination"
)

// RegisterInput holds the fields collected at sign-up.
type RegisterInput struct {
	Nickname string
	Name     string
	Email    string
	Password string
}

// ProfileUpdate holds optional profile changes; nil fields are left as is.
type ProfileUpdate struct {
	Name     *string
	FullName *string
	Phone    *string
}

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	Register(in RegisterInput) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	GetUserByNickname(nickname string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(nickname, password string) (*models.User, error)
	StoreRefreshTokenHash(userID string, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
	UpdateProfile(userID string, in ProfileUpdate) (*models.User, error)
	SetAvatar(userID, avatarURL string) (*models.User, error)
}

// CompanyServicer defines the contract for the company catalog.
type CompanyServicer interface {
	ListCompanies() ([]models.Company, error)
	GetCompany(id string) (*models.Company, error)
	Seed() (int, error)
}

// BuyResult describes an executed purchase.
type BuyResult struct {
	Balance   decimal.Decimal `json:"new_balance"`
	Price     decimal.Decimal `json:"price"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Shares    int64           `json:"shares"`
	Company   models.Company  `json:"company"`
	Position  models.Position `json:"investment"`
}

// SellResult describes an executed sale.
type SellResult struct {
	Balance         decimal.Decimal `json:"new_balance"`
	Price           decimal.Decimal `json:"price"`
	Proceeds        decimal.Decimal `json:"sale_amount"`
	Profit          decimal.Decimal `json:"profit"`
	Shares          int64           `json:"shares"`
	RemainingShares int64           `json:"remaining_shares"`
	Company         models.Company  `json:"company"`
}

// PositionView is an active position valued at a freshly drawn display price.
// Its CurrentPrice shadows the stored one in JSON.
type PositionView struct {
	models.Position
	InvestedAmount decimal.Decimal `json:"invested_amount"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	Profit         decimal.Decimal `json:"profit"`
	ProfitPercent  decimal.Decimal `json:"profit_percent"`
}

// LedgerServicer defines the contract for buying and selling shares.
type LedgerServicer interface {
	Buy(userID, companyID string, shares int64) (*BuyResult, error)
	Sell(userID, positionID string, shares int64) (*SellResult, error)
	ListPositions(userID string) ([]PositionView, error)
	History(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.LedgerEntry], error)
}

// AttachmentInput is an uploaded file accompanying a chat message.
type AttachmentInput struct {
	Filename string
	Content  io.Reader
}

// MessageInput is a chat message to send. At least one of Text and
// Attachment must be present.
type MessageInput struct {
	Text       string
	Attachment *AttachmentInput
}

// SendResult is the stored message and the chat it landed in. Moved is set
// when the requested chat was closed and the message went to the user's open
// chat instead; NewChat when that chat had to be created.
type SendResult struct {
	Chat    *models.SupportChat `json:"chat"`
	Message *models.ChatMessage `json:"message"`
	Moved   bool                `json:"moved"`
	NewChat bool                `json:"new_chat"`
}

// GrantResult describes a balance grant made from a support chat.
type GrantResult struct {
	Balance decimal.Decimal     `json:"new_balance"`
	Amount  decimal.Decimal     `json:"amount"`
	Message *models.ChatMessage `json:"message"`
}

// ChatServicer defines the contract for the support chat lifecycle.
type ChatServicer interface {
	Create(userID string) (*models.SupportChat, error)
	Get(callerID, chatID string) (*models.SupportChat, error)
	Join(adminID, chatID string) (*models.SupportChat, error)
	Leave(adminID, chatID string) (*models.SupportChat, error)
	Close(adminID, chatID string) (*models.SupportChat, error)
	SendMessage(callerID, chatID string, in MessageInput) (*SendResult, error)
	ListMessages(callerID, chatID string) ([]models.ChatMessage, error)
	GrantBalance(adminID, chatID string, amount decimal.Decimal) (*GrantResult, error)
	ListPending(callerID string) ([]models.SupportChat, error)
	ListActive(callerID string) ([]models.SupportChat, error)
	ListClosed(callerID string, page pagination.PageRequest) (*pagination.PageResponse[models.SupportChat], error)
	UnreadCount(callerID string) (int64, error)
}

// UserInfo is the admin view of one account.
type UserInfo struct {
	User            models.User       `json:"user"`
	ActivePositions []models.Position `json:"active_investments"`
	ChatCount       int64             `json:"chat_count"`
}

// PlatformStats aggregates wallet figures across all users.
type PlatformStats struct {
	TotalUsers      int64           `json:"total_users"`
	TotalBalance    decimal.Decimal `json:"total_balance"`
	TotalInvested   decimal.Decimal `json:"total_invested"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	ActivePositions int64           `json:"active_investments"`
	OpenChats       int64           `json:"open_chats"`
}

// BulkEmailInput selects recipients for an announcement. When SendToAll is
// false only Recipients that belong to registered users are mailed.
type BulkEmailInput struct {
	Subject    string
	Body       string
	SendToAll  bool
	Recipients []string
}

// AdminServicer defines the contract for the admin panel.
type AdminServicer interface {
	ListUsers(search string, page pagination.PageRequest) (*pagination.PageResponse[models.User], error)
	GetUserInfo(userID string) (*UserInfo, error)
	AdjustBalance(actorID, nickname string, delta decimal.Decimal, ipAddress string) (*models.User, error)
	AssignAdmin(actorID, nickname, ipAddress string) (*models.User, error)
	RemoveAdmin(actorID, nickname, ipAddress string) (*models.User, error)
	Stats() (*PlatformStats, error)
	SendBulkEmail(in BulkEmailInput) (int, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(actorID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}

// Mailer queues outbound email without blocking the caller.
type Mailer interface {
	Enqueue(msg notify.Message) bool
}
