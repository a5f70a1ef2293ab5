package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Creecly/cleaninvest/internal/services"
)

// CompanyHandler serves the company catalog.
type CompanyHandler struct {
	companyService services.CompanyServicer
}

// NewCompanyHandler creates a new CompanyHandler.
func NewCompanyHandler(companyService services.CompanyServicer) *CompanyHandler {
	return &CompanyHandler{companyService: companyService}
}

// ListCompanies returns every company that can be invested in
// @Summary     List companies
// @Description List the investable companies with their base prices
// @Tags        companies
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  models.Company "Companies"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /companies [get]
func (h *CompanyHandler) ListCompanies(c *gin.Context) {
	companies, err := h.companyService.ListCompanies()
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies})
}

// GetCompany returns one company
// @Summary     Get company
// @Description Get one company by ID
// @Tags        companies
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Company ID"
// @Success     200 {object} models.Company "Company"
// @Failure     400 {object} ErrorResponse "Invalid company ID"
// @Failure     404 {object} ErrorResponse "Company not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /companies/{id} [get]
func (h *CompanyHandler) GetCompany(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	company, err := h.companyService.GetCompany(id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"company": company})
}
