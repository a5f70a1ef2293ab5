package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Creecly/cleaninvest/internal/database"
	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/logger"
	"github.com/Creecly/cleaninvest/internal/models"
	"github.com/Creecly/cleaninvest/internal/pagination"
	"github.com/Creecly/cleaninvest/internal/valuation"
)

// ledgerService applies buy and sell orders to user wallets and positions.
//
// Every wallet mutation for a user runs under that user's KeyedLocker entry
// and inside one transaction that locks the user row (and the position row,
// when one is involved) with SELECT ... FOR UPDATE.
type ledgerService struct {
	db     *gorm.DB
	pricer *valuation.Pricer
	locks  *database.KeyedLocker
}

// NewLedgerService creates a new LedgerServicer. locks must be shared with
// every other service that mutates user balances.
func NewLedgerService(db *gorm.DB, pricer *valuation.Pricer, locks *database.KeyedLocker) LedgerServicer {
	return &ledgerService{db: db, pricer: pricer, locks: locks}
}

// lockUser loads the user row for update inside tx.
func lockUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	if err := database.ForUpdate(tx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// Buy purchases shares of a company at a freshly drawn execution price and
// merges them into the user's active position in that company, if any.
func (s *ledgerService) Buy(userID, companyID string, shares int64) (*BuyResult, error) {
	if shares <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "shares must be a positive number")
	}

	var company models.Company
	if err := s.db.First(&company, "id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	price := s.pricer.ExecutionPrice(company.BasePrice)
	cost := price.Mul(decimal.NewFromInt(shares))

	unlock := s.locks.Lock(userID)
	defer unlock()

	result := &BuyResult{Price: price, TotalCost: cost, Shares: shares, Company: company}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.Balance.LessThan(cost) {
			return apperrors.ErrInsufficientFunds
		}

		var position models.Position
		err = database.ForUpdate(tx).
			Where("user_id = ? AND company_id = ? AND is_active = ?", userID, companyID, true).
			First(&position).Error
		switch {
		case err == nil:
			basis := valuation.WeightedAverage(position.PurchasePrice, position.Shares, cost, shares)
			total := position.Shares + shares
			if err := tx.Model(&position).Updates(map[string]interface{}{
				"shares":         total,
				"purchase_price": basis,
				"current_price":  basis,
			}).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			position.Shares = total
			position.PurchasePrice = basis
			position.CurrentPrice = basis
		case errors.Is(err, gorm.ErrRecordNotFound):
			position = models.Position{
				UserID:        userID,
				CompanyID:     companyID,
				Shares:        shares,
				PurchasePrice: price,
				CurrentPrice:  price,
				PurchaseDate:  time.Now(),
				IsActive:      true,
			}
			if err := tx.Omit(clause.Associations).Create(&position).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		default:
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		balance := user.Balance.Sub(cost)
		if err := tx.Model(user).Updates(map[string]interface{}{
			"balance":           balance,
			"total_invested":    user.TotalInvested.Add(cost),
			"investments_count": gorm.Expr("investments_count + ?", 1),
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		entry := &models.LedgerEntry{
			UserID:       userID,
			Kind:         models.LedgerEntryBuy,
			CompanyID:    &company.ID,
			PositionID:   &position.ID,
			Shares:       shares,
			Price:        price,
			Amount:       cost.Neg(),
			BalanceAfter: balance,
		}
		if err := tx.Create(entry).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		position.Company = company
		result.Balance = balance
		result.Position = position
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("shares bought",
		"user_id", userID,
		"company", company.Symbol,
		"shares", shares,
		"price", price.String(),
		"cost", cost.String(),
	)
	return result, nil
}

// Sell sells shares of an active position at a freshly drawn display price.
// Selling every share deactivates the position; it is never deleted.
func (s *ledgerService) Sell(userID, positionID string, shares int64) (*SellResult, error) {
	if shares <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "shares must be a positive number")
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	result := &SellResult{Shares: shares}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Rows are locked user first, then position, as in Buy.
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}

		var position models.Position
		if err := database.ForUpdate(tx).
			Where("id = ? AND user_id = ? AND is_active = ?", positionID, userID, true).
			First(&position).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrPositionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if shares > position.Shares {
			return apperrors.ErrInsufficientShares
		}

		var company models.Company
		if err := tx.First(&company, "id = ?", position.CompanyID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		sale := s.pricer.Value(position.PurchasePrice, shares)
		proceeds := sale.MarketValue
		profit := sale.Profit

		full := shares == position.Shares
		positionUpdates := map[string]interface{}{"current_price": sale.DisplayPrice}
		userUpdates := map[string]interface{}{
			"balance":         user.Balance.Add(proceeds),
			"total_withdrawn": user.TotalWithdrawn.Add(proceeds),
			"total_profit":    user.TotalProfit.Add(profit),
		}
		remaining := position.Shares - shares
		if full {
			positionUpdates["is_active"] = false
			userUpdates["successful_investments"] = gorm.Expr("successful_investments + ?", 1)
			remaining = 0
		} else {
			positionUpdates["shares"] = remaining
		}

		if err := tx.Model(&position).Updates(positionUpdates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Model(user).Updates(userUpdates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		balance := user.Balance.Add(proceeds)
		entry := &models.LedgerEntry{
			UserID:       userID,
			Kind:         models.LedgerEntrySell,
			CompanyID:    &company.ID,
			PositionID:   &position.ID,
			Shares:       shares,
			Price:        sale.DisplayPrice,
			Amount:       proceeds,
			Profit:       profit,
			BalanceAfter: balance,
		}
		if err := tx.Create(entry).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		result.Balance = balance
		result.Price = sale.DisplayPrice
		result.Proceeds = proceeds
		result.Profit = profit
		result.RemainingShares = remaining
		result.Company = company
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("shares sold",
		"user_id", userID,
		"position_id", positionID,
		"shares", shares,
		"price", result.Price.String(),
		"proceeds", result.Proceeds.String(),
	)
	return result, nil
}

// ListPositions returns the user's active positions, each valued at a newly
// drawn display price.
func (s *ledgerService) ListPositions(userID string) ([]PositionView, error) {
	var positions []models.Position
	if err := s.db.Preload("Company").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("purchase_date DESC").
		Find(&positions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		v := s.pricer.Value(p.PurchasePrice, p.Shares)
		views = append(views, PositionView{
			Position:       p,
			InvestedAmount: p.CostBasisTotal(),
			CurrentPrice:   v.DisplayPrice,
			CurrentValue:   v.MarketValue,
			Profit:         v.Profit,
			ProfitPercent:  v.ProfitPercent,
		})
	}
	return views, nil
}

// History returns the user's ledger entries, newest first.
func (s *ledgerService) History(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.LedgerEntry], error) {
	page.Defaults()

	var total int64
	if err := s.db.Model(&models.LedgerEntry{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var entries []models.LedgerEntry
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Scopes(pagination.Paginate(page)).
		Find(&entries).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(entries, page.Page, page.PageSize, total)
	return &resp, nil
}
