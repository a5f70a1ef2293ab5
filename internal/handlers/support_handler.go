package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/models"
	"github.com/Creecly/cleaninvest/internal/services"
)

// SupportHandler exposes the support chat lifecycle to users and admins.
type SupportHandler struct {
	chatService services.ChatServicer
}

// NewSupportHandler creates a new SupportHandler.
func NewSupportHandler(chatService services.ChatServicer) *SupportHandler {
	return &SupportHandler{chatService: chatService}
}

// SendMessageRequest represents a text-only chat message. Attachments are
// sent as multipart/form-data with fields "message" and "attachment".
type SendMessageRequest struct {
	Message string `json:"message" binding:"required,max=5000"`
}

// GrantBalanceRequest represents a balance grant from a support chat.
type GrantBalanceRequest struct {
	Amount string `json:"amount" binding:"required,positive_decimal"`
}

// ListChatsQuery selects which chats to list.
type ListChatsQuery struct {
	Status string `form:"status" binding:"omitempty,chat_status"`
}

// CreateChat opens a support request
// @Summary     Open support chat
// @Description Return the caller's open chat or open a new pending one
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Success     201 {object} models.SupportChat "Chat"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats [post]
func (h *SupportHandler) CreateChat(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	chat, err := h.chatService.Create(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// ListChats lists chats by status
// @Summary     List support chats
// @Description Active chats by default. Pending and closed listings are admin only.
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Param       status    query string false "pending, active or closed"
// @Param       page      query int    false "Page number for closed chats (default 1)"
// @Param       page_size query int    false "Items per page for closed chats (default 20, max 100)"
// @Success     200 {array}  models.SupportChat "Chats"
// @Failure     400 {object} ErrorResponse "Invalid status"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats [get]
func (h *SupportHandler) ListChats(c *gin.Context) {
	var q ListChatsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	switch models.ChatStatus(q.Status) {
	case models.ChatStatusPending:
		h.ListPending(c)
	case models.ChatStatusClosed:
		h.ListClosed(c)
	default:
		h.ListActive(c)
	}
}

// ListPending returns the queue of unclaimed chats
// @Summary     Pending chats
// @Description Unclaimed support requests, oldest first
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  models.SupportChat "Pending chats"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/pending [get]
func (h *SupportHandler) ListPending(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	chats, err := h.chatService.ListPending(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// ListActive returns active chats
// @Summary     Active chats
// @Description For an admin the chats they hold; for a user their own active chat
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  models.SupportChat "Active chats"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/active [get]
func (h *SupportHandler) ListActive(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	chats, err := h.chatService.ListActive(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// ListClosed returns the closed chat history
// @Summary     Closed chats
// @Description Paginated closed chats, most recently closed first
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.SupportChat] "Closed chats"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/closed [get]
func (h *SupportHandler) ListClosed(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.chatService.ListClosed(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetChat returns one chat
// @Summary     Get chat
// @Description Get a chat visible to the caller
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Chat ID"
// @Success     200 {object} models.SupportChat "Chat"
// @Failure     400 {object} ErrorResponse "Invalid chat ID"
// @Failure     403 {object} ErrorResponse "Not a participant"
// @Failure     404 {object} ErrorResponse "Chat not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/{id} [get]
func (h *SupportHandler) GetChat(c *gin.Context) {
	h.withChat(c, h.chatService.Get, http.StatusOK)
}

// Join claims a pending chat
// @Summary     Join chat
// @Description Claim a pending chat. Only one admin can win a claim.
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Chat ID"
// @Success     200 {object} models.SupportChat "Chat"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     404 {object} ErrorResponse "Chat not found"
// @Failure     409 {object} ErrorResponse "Chat already taken or closed"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/{id}/join [post]
func (h *SupportHandler) Join(c *gin.Context) {
	h.withChat(c, h.chatService.Join, http.StatusOK)
}

// Leave returns a held chat to the queue
// @Summary     Leave chat
// @Description Hand an active chat back to the pending queue
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Chat ID"
// @Success     200 {object} models.SupportChat "Chat"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     404 {object} ErrorResponse "Chat not found"
// @Failure     409 {object} ErrorResponse "Chat is not held by the caller"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/{id}/leave [post]
func (h *SupportHandler) Leave(c *gin.Context) {
	h.withChat(c, h.chatService.Leave, http.StatusOK)
}

// Close ends a held chat
// @Summary     Close chat
// @Description Close an active chat held by the caller
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Chat ID"
// @Success     200 {object} models.SupportChat "Chat"
// @Failure     403 {object} ErrorResponse "Held by another admin"
// @Failure     404 {object} ErrorResponse "Chat not found"
// @Failure     409 {object} ErrorResponse "Chat is not active"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/{id}/close [post]
func (h *SupportHandler) Close(c *gin.Context) {
	h.withChat(c, h.chatService.Close, http.StatusOK)
}

func (h *SupportHandler) withChat(c *gin.Context, op func(callerID, chatID string) (*models.SupportChat, error), status int) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	chatID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	chat, err := op(userID, chatID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(status, gin.H{"chat": chat})
}

// ListMessages returns a chat's messages
// @Summary     Chat messages
// @Description Messages in order. Marks the counterpart's messages read.
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Chat ID"
// @Success     200 {array}  models.ChatMessage "Messages"
// @Failure     403 {object} ErrorResponse "Not a participant"
// @Failure     404 {object} ErrorResponse "Chat not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/{id}/messages [get]
func (h *SupportHandler) ListMessages(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	chatID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	messages, err := h.chatService.ListMessages(userID, chatID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage posts a message
// @Summary     Send message
// @Description Send text as JSON, or text and an attachment as multipart/form-data. Writing to a closed chat opens a new one.
// @Tags        support
// @Accept      json,mpfd
// @Produce     json
// @Security    BearerAuth
// @Param       id         path     string             true  "Chat ID"
// @Param       request    body     SendMessageRequest false "Text message"
// @Param       attachment formData file               false "Attachment (png, jpg, jpeg, gif, webp, pdf, doc, docx)"
// @Success     201 {object} services.SendResult "Stored message"
// @Failure     400 {object} ErrorResponse "Invalid input or attachment"
// @Failure     403 {object} ErrorResponse "Not a participant"
// @Failure     404 {object} ErrorResponse "Chat not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/{id}/messages [post]
func (h *SupportHandler) SendMessage(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	chatID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var in services.MessageInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		in.Text = c.PostForm("message")
		fh, err := c.FormFile("attachment")
		switch {
		case err == nil:
			f, err := fh.Open()
			if err != nil {
				respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
				return
			}
			defer f.Close()
			in.Attachment = &services.AttachmentInput{Filename: fh.Filename, Content: f}
		case errors.Is(err, http.ErrMissingFile):
		default:
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	} else {
		var req SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
		in.Text = req.Message
	}

	result, err := h.chatService.SendMessage(userID, chatID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GrantBalance credits the chat user
// @Summary     Grant balance
// @Description Credit the user of an active chat held by the caller
// @Tags        support
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string              true "Chat ID"
// @Param       request body GrantBalanceRequest true "Amount"
// @Success     200 {object} services.GrantResult "Grant"
// @Failure     400 {object} ErrorResponse "Invalid amount"
// @Failure     403 {object} ErrorResponse "Not the holding admin"
// @Failure     404 {object} ErrorResponse "Chat not found"
// @Failure     409 {object} ErrorResponse "Chat is not active"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/chats/{id}/balance [post]
func (h *SupportHandler) GrantBalance(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	chatID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req GrantBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid amount"))
		return
	}

	result, err := h.chatService.GrantBalance(userID, chatID, amount)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UnreadCount returns the caller's unread message count
// @Summary     Unread count
// @Description Unread support messages addressed to the caller
// @Tags        support
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string]int64 "Unread count"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /support/unread [get]
func (h *SupportHandler) UnreadCount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	count, err := h.chatService.UnreadCount(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}
