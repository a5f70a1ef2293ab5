package models

import "time"

// ChatStatus is the lifecycle state of a support conversation.
type ChatStatus string

const (
	ChatStatusPending ChatStatus = "pending"
	ChatStatusActive  ChatStatus = "active"
	ChatStatusClosed  ChatStatus = "closed"
)

// SupportChat is a conversation between one user and at most one admin.
// A pending chat has no admin, an active chat has exactly one, and a closed
// chat is terminal.
type SupportChat struct {
	Base
	UserID           string     `gorm:"type:uuid;not null;index" json:"user_id"`
	AdminID          *string    `gorm:"type:uuid;index" json:"admin_id,omitempty"`
	Status           ChatStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	AdminJoinedAt    *time.Time `json:"admin_joined_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	UnreadAdminCount int        `gorm:"not null;default:0" json:"unread_admin_count"`
	UnreadUserCount  int        `gorm:"not null;default:0" json:"unread_user_count"`
	WelcomePosted    bool       `gorm:"not null;default:false" json:"-"`

	User  *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Admin *User `gorm:"foreignKey:AdminID" json:"admin,omitempty"`
}

// IsOpen reports whether the chat still accepts lifecycle transitions.
func (c *SupportChat) IsOpen() bool {
	return c.Status == ChatStatusPending || c.Status == ChatStatusActive
}

// HeldBy reports whether adminID is the admin currently attached to the chat.
func (c *SupportChat) HeldBy(adminID string) bool {
	return c.AdminID != nil && *c.AdminID == adminID
}
