package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/services"
)

// InvestmentHandler handles buying, selling and listing positions.
type InvestmentHandler struct {
	ledgerService services.LedgerServicer
}

// NewInvestmentHandler creates a new InvestmentHandler.
func NewInvestmentHandler(ledgerService services.LedgerServicer) *InvestmentHandler {
	return &InvestmentHandler{ledgerService: ledgerService}
}

// BuyRequest represents the request payload for buying shares.
type BuyRequest struct {
	CompanyID string `json:"company_id" binding:"required,uuid"`
	Shares    int64  `json:"shares" binding:"required,gt=0"`
}

// SellRequest represents the request payload for selling shares.
type SellRequest struct {
	InvestmentID string `json:"investment_id" binding:"required,uuid"`
	Shares       int64  `json:"shares" binding:"required,gt=0"`
}

// ListInvestments returns the active positions of the user
// @Summary     List investments
// @Description List active positions valued at a freshly simulated price
// @Tags        investments
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  services.PositionView "Active investments"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /investments [get]
func (h *InvestmentHandler) ListInvestments(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	positions, err := h.ledgerService.ListPositions(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"investments": positions})
}

// Buy handles a share purchase.
// @Summary     Buy shares
// @Description Buy shares of a company at a simulated execution price within 5% of its base price
// @Tags        investments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body BuyRequest true "Order"
// @Success     201 {object} services.BuyResult "Executed purchase"
// @Failure     400 {object} ErrorResponse "Invalid input or insufficient balance"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Company not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /investments/buy [post]
func (h *InvestmentHandler) Buy(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.ledgerService.Buy(userID, req.CompanyID, req.Shares)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Sell handles a share sale.
// @Summary     Sell shares
// @Description Sell shares of an active position at its current simulated price
// @Tags        investments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body SellRequest true "Order"
// @Success     200 {object} services.SellResult "Executed sale"
// @Failure     400 {object} ErrorResponse "Invalid input or insufficient shares"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Investment not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /investments/sell [post]
func (h *InvestmentHandler) Sell(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.ledgerService.Sell(userID, req.InvestmentID, req.Shares)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// History returns the user's ledger
// @Summary     Ledger history
// @Description Paginated buys, sells and balance grants, newest first
// @Tags        investments
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.LedgerEntry] "Ledger entries"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /investments/history [get]
func (h *InvestmentHandler) History(c *gin.Context) {
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

	result, err := h.ledgerService.History(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
