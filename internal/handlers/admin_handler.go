package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/services"
)

// AdminHandler serves the admin panel.
type AdminHandler struct {
	adminService services.AdminServicer
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminService services.AdminServicer) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsersQuery filters the user list.
type ListUsersQuery struct {
	Search string `form:"search" binding:"omitempty,max=100"`
}

// AdjustBalanceRequest represents a manual balance change. Amount may be
// negative.
type AdjustBalanceRequest struct {
	Nickname string          `json:"nickname" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

// AdminRightsRequest names the user whose admin rights change.
type AdminRightsRequest struct {
	Nickname string `json:"nickname" binding:"required"`
}

// BulkEmailRequest represents an announcement email.
type BulkEmailRequest struct {
	Subject    string   `json:"subject" binding:"required,max=200"`
	Body       string   `json:"body" binding:"required"`
	SendToAll  bool     `json:"send_to_all"`
	Recipients []string `json:"recipients" binding:"omitempty,dive,email"`
}

// ListUsers returns users page by page
// @Summary     List users
// @Description Paginated user list, optionally filtered by nickname, name or email
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       search    query string false "Search text"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.User] "Users"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var q ListUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	page, err := bindPage(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.adminService.ListUsers(q.Search, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetUser returns one user with their active positions
// @Summary     User info
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "User ID"
// @Success     200 {object} services.UserInfo "User info"
// @Failure     400 {object} ErrorResponse "Invalid user ID"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     404 {object} ErrorResponse "User not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/users/{id} [get]
func (h *AdminHandler) GetUser(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	info, err := h.adminService.GetUserInfo(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// AdjustBalance changes a user's balance
// @Summary     Adjust balance
// @Description Add a positive or negative amount to a user's balance
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body AdjustBalanceRequest true "Adjustment"
// @Success     200 {object} models.User "Updated user"
// @Failure     400 {object} ErrorResponse "Invalid input or insufficient balance"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     404 {object} ErrorResponse "User not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/balance [post]
func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	actorID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	user, err := h.adminService.AdjustBalance(actorID, req.Nickname, req.Amount, c.ClientIP())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// AssignAdmin grants admin rights
// @Summary     Assign admin
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body AdminRightsRequest true "User"
// @Success     200 {object} models.User "Updated user"
// @Failure     400 {object} ErrorResponse "Already an admin"
// @Failure     403 {object} ErrorResponse "Owner only"
// @Failure     404 {object} ErrorResponse "User not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/admins [post]
func (h *AdminHandler) AssignAdmin(c *gin.Context) {
	actorID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AdminRightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	user, err := h.adminService.AssignAdmin(actorID, req.Nickname, c.ClientIP())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// RemoveAdmin revokes admin rights
// @Summary     Remove admin
// @Description Revoke admin rights. Owners keep theirs.
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       nickname path string true "Nickname"
// @Success     200 {object} models.User "Updated user"
// @Failure     400 {object} ErrorResponse "Not an admin or owner"
// @Failure     403 {object} ErrorResponse "Owner only"
// @Failure     404 {object} ErrorResponse "User not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/admins/{nickname} [delete]
func (h *AdminHandler) RemoveAdmin(c *gin.Context) {
	actorID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	user, err := h.adminService.RemoveAdmin(actorID, c.Param("nickname"), c.ClientIP())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Stats returns platform totals
// @Summary     Platform stats
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.PlatformStats "Stats"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats()
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SendBulkEmail queues an announcement
// @Summary     Bulk email
// @Description Queue an email to every user or to the listed registered addresses
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body BulkEmailRequest true "Email"
// @Success     202 {object} map[string]int "Number of queued emails"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     403 {object} ErrorResponse "Admin only"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /admin/emails [post]
func (h *AdminHandler) SendBulkEmail(c *gin.Context) {
	var req BulkEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	queued, err := h.adminService.SendBulkEmail(services.BulkEmailInput{
		Subject:    req.Subject,
		Body:       req.Body,
		SendToAll:  req.SendToAll,
		Recipients: req.Recipients,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}
