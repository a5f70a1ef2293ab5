package models

// ChatMessage is one message in a support chat. System messages record
// lifecycle transitions and are never counted as unread.
type ChatMessage struct {
	Base
	ChatID                string `gorm:"type:uuid;not null;index" json:"chat_id"`
	SenderID              string `gorm:"type:uuid;not null;index" json:"sender_id"`
	Message               string `gorm:"type:text;not null" json:"message"`
	AttachmentURL         string `gorm:"size:255" json:"attachment_url,omitempty"`
	AttachmentContentType string `gorm:"size:100" json:"attachment_content_type,omitempty"`
	IsSystem              bool   `gorm:"not null;default:false" json:"is_system"`
	IsRead                bool   `gorm:"not null;default:false" json:"is_read"`
}
