package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Creecly/cleaninvest/internal/models"
)

// TestPassword is the plain-text password of every fixture user.
const TestPassword = "password123"

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password, unique nickname and
// email, and a balance of 1000.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	return createUser(t, db, decimal.NewFromInt(1000), false, false)
}

// CreateTestUserWithBalance creates a user holding the given balance.
func CreateTestUserWithBalance(t *testing.T, db *gorm.DB, balance string) *models.User {
	t.Helper()
	return createUser(t, db, decimal.RequireFromString(balance), false, false)
}

// CreateTestAdmin creates a user with the admin flag set.
func CreateTestAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	return createUser(t, db, decimal.NewFromInt(1000), true, false)
}

// CreateTestOwner creates an admin who is also the platform owner.
func CreateTestOwner(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	return createUser(t, db, decimal.NewFromInt(1000), true, true)
}

func createUser(t *testing.T, db *gorm.DB, balance decimal.Decimal, admin, owner bool) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	n := nextID()
	user := &models.User{
		Nickname: fmt.Sprintf("user%d", n),
		Name:     fmt.Sprintf("User %d", n),
		Email:    fmt.Sprintf("user%d@test.com", n),
		Password: string(hash),
		Balance:  balance,
		IsAdmin:  admin,
		IsOwner:  owner,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestCompany creates a company with the given base price.
func CreateTestCompany(t *testing.T, db *gorm.DB, basePrice string) *models.Company {
	t.Helper()

	n := nextID()
	company := &models.Company{
		Name:        fmt.Sprintf("Test Company %d", n),
		Symbol:      fmt.Sprintf("T%d", n),
		Category:    "Technology",
		BasePrice:   decimal.RequireFromString(basePrice),
		Description: "Fixture company",
		Icon:        "fa-flask",
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}
	return company
}

// CreateTestPosition creates an active position without touching the
// user's balance or counters.
func CreateTestPosition(t *testing.T, db *gorm.DB, userID, companyID string, shares int64, price string) *models.Position {
	t.Helper()

	p := decimal.RequireFromString(price)
	position := &models.Position{
		UserID:        userID,
		CompanyID:     companyID,
		Shares:        shares,
		PurchasePrice: p,
		CurrentPrice:  p,
		PurchaseDate:  time.Now(),
		IsActive:      true,
	}
	if err := db.Omit(clause.Associations).Create(position).Error; err != nil {
		t.Fatalf("failed to create test position: %v", err)
	}
	return position
}

// CreateTestChat creates a chat in the given state. An admin must be given
// for active chats.
func CreateTestChat(t *testing.T, db *gorm.DB, userID string, status models.ChatStatus, adminID *string) *models.SupportChat {
	t.Helper()

	chat := &models.SupportChat{
		UserID:        userID,
		AdminID:       adminID,
		Status:        status,
		WelcomePosted: true,
	}
	now := time.Now()
	switch status {
	case models.ChatStatusActive:
		chat.AdminJoinedAt = &now
	case models.ChatStatusClosed:
		chat.ClosedAt = &now
	}
	if err := db.Omit(clause.Associations).Create(chat).Error; err != nil {
		t.Fatalf("failed to create test chat: %v", err)
	}
	return chat
}

// CreateTestMessage appends a participant message to a chat.
func CreateTestMessage(t *testing.T, db *gorm.DB, chatID, senderID, text string) *models.ChatMessage {
	t.Helper()

	msg := &models.ChatMessage{ChatID: chatID, SenderID: senderID, Message: text}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("failed to create test message: %v", err)
	}
	return msg
}

// ReloadUser re-reads a user from the database.
func ReloadUser(t *testing.T, db *gorm.DB, id string) *models.User {
	t.Helper()

	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload user %s: %v", id, err)
	}
	return &user
}

// ReloadChat re-reads a support chat from the database.
func ReloadChat(t *testing.T, db *gorm.DB, id string) *models.SupportChat {
	t.Helper()

	var chat models.SupportChat
	if err := db.First(&chat, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload chat %s: %v", id, err)
	}
	return &chat
}

// AssertDecimal fails the test if got is not numerically equal to want.
func AssertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()

	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", label, got.String(), want)
	}
}
