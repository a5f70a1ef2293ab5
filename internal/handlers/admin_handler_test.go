package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "github.com/Creecly/cleaninvest/internal/errors"
	"github.com/Creecly/cleaninvest/internal/models"
	"github.com/Creecly/cleaninvest/internal/pagination"
	"github.com/Creecly/cleaninvest/internal/services"
)

type mockAdminService struct {
	listUsersFn     func(search string, page pagination.PageRequest) (*pagination.PageResponse[models.User], error)
	getUserInfoFn   func(userID string) (*services.UserInfo, error)
	adjustBalanceFn func(actorID, nickname string, delta decimal.Decimal, ip string) (*models.User, error)
	assignAdminFn   func(actorID, nickname, ip string) (*models.User, error)
	removeAdminFn   func(actorID, nickname, ip string) (*models.User, error)
	statsFn         func() (*services.PlatformStats, error)
	sendBulkEmailFn func(in services.BulkEmailInput) (int, error)
}

var _ services.AdminServicer = (*mockAdminService)(nil)

func (m *mockAdminService) ListUsers(search string, page pagination.PageRequest) (*pagination.PageResponse[models.User], error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(search, page)
	}
	page.Defaults()
	resp := pagination.NewPageResponse([]models.User{}, page.Page, page.PageSize, 0)
	return &resp, nil
}

func (m *mockAdminService) GetUserInfo(userID string) (*services.UserInfo, error) {
	if m.getUserInfoFn != nil {
		return m.getUserInfoFn(userID)
	}
	return &services.UserInfo{User: models.User{Base: models.Base{ID: userID}}}, nil
}

func (m *mockAdminService) AdjustBalance(actorID, nickname string, delta decimal.Decimal, ip string) (*models.User, error) {
	if m.adjustBalanceFn != nil {
		return m.adjustBalanceFn(actorID, nickname, delta, ip)
	}
	return &models.User{Nickname: nickname, Balance: delta}, nil
}

func (m *mockAdminService) AssignAdmin(actorID, nickname, ip string) (*models.User, error) {
	if m.assignAdminFn != nil {
		return m.assignAdminFn(actorID, nickname, ip)
	}
	return &models.User{Nickname: nickname, IsAdmin: true}, nil
}

func (m *mockAdminService) RemoveAdmin(actorID, nickname, ip string) (*models.User, error) {
	if m.removeAdminFn != nil {
		return m.removeAdminFn(actorID, nickname, ip)
	}
	return &models.User{Nickname: nickname}, nil
}

func (m *mockAdminService) Stats() (*services.PlatformStats, error) {
	if m.statsFn != nil {
		return m.statsFn()
	}
	return &services.PlatformStats{}, nil
}

func (m *mockAdminService) SendBulkEmail(in services.BulkEmailInput) (int, error) {
	if m.sendBulkEmailFn != nil {
		return m.sendBulkEmailFn(in)
	}
	return 0, nil
}

func setupAdminRouter(handler *AdminHandler) *gin.Engine {
	r := gin.New()
	g := r.Group("/admin", injectUserID(testAdminID))
	g.GET("/users", handler.ListUsers)
	g.GET("/users/:id", handler.GetUser)
	g.POST("/balance", handler.AdjustBalance)
	g.POST("/admins", handler.AssignAdmin)
	g.DELETE("/admins/:nickname", handler.RemoveAdmin)
	g.GET("/stats", handler.Stats)
	g.POST("/emails", handler.SendBulkEmail)
	return r
}

func TestAdminHandler_ListUsers(t *testing.T) {
	t.Run("passes search and page", func(t *testing.T) {
		var gotSearch string
		var gotPage pagination.PageRequest
		svc := &mockAdminService{
			listUsersFn: func(search string, page pagination.PageRequest) (*pagination.PageResponse[models.User], error) {
				gotSearch, gotPage = search, page
				resp := pagination.NewPageResponse([]models.User{{Nickname: "trader_01"}}, 1, 10, 1)
				return &resp, nil
			},
		}
		r := setupAdminRouter(NewAdminHandler(svc))

		rec := doRequest(r, "GET", "/admin/users?search=trader&page=1&page_size=10", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotSearch != "trader" || gotPage.PageSize != 10 {
			t.Errorf("unexpected call search=%q page=%+v", gotSearch, gotPage)
		}
		if parseJSON(t, rec)["total_items"].(float64) != 1 {
			t.Error("expected total_items 1")
		}
	})
}

func TestAdminHandler_GetUser(t *testing.T) {
	t.Run("returns 404 for unknown user", func(t *testing.T) {
		svc := &mockAdminService{
			getUserInfoFn: func(string) (*services.UserInfo, error) { return nil, apperrors.ErrUserNotFound },
		}
		r := setupAdminRouter(NewAdminHandler(svc))

		rec := doRequest(r, "GET", "/admin/users/"+testUserID, "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("returns 200 with user info", func(t *testing.T) {
		r := setupAdminRouter(NewAdminHandler(&mockAdminService{}))

		rec := doRequest(r, "GET", "/admin/users/"+testUserID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		user := parseJSON(t, rec)["user"].(map[string]interface{})
		if user["id"] != testUserID {
			t.Errorf("expected id %s, got %v", testUserID, user["id"])
		}
	})
}

func TestAdminHandler_AdjustBalance(t *testing.T) {
	t.Run("accepts a negative amount", func(t *testing.T) {
		var gotActor, gotNickname string
		var gotDelta decimal.Decimal
		svc := &mockAdminService{
			adjustBalanceFn: func(actorID, nickname string, delta decimal.Decimal, _ string) (*models.User, error) {
				gotActor, gotNickname, gotDelta = actorID, nickname, delta
				return &models.User{Nickname: nickname}, nil
			},
		}
		r := setupAdminRouter(NewAdminHandler(svc))

		rec := doRequest(r, "POST", "/admin/balance", `{"nickname":"trader_01","amount":"-50.25"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotActor != testAdminID || gotNickname != "trader_01" {
			t.Errorf("unexpected call actor=%s nickname=%s", gotActor, gotNickname)
		}
		if !gotDelta.Equal(decimal.RequireFromString("-50.25")) {
			t.Errorf("expected delta -50.25, got %s", gotDelta)
		}
	})

	t.Run("returns 400 without nickname", func(t *testing.T) {
		r := setupAdminRouter(NewAdminHandler(&mockAdminService{}))

		rec := doRequest(r, "POST", "/admin/balance", `{"amount":"10"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 when balance would go negative", func(t *testing.T) {
		svc := &mockAdminService{
			adjustBalanceFn: func(string, string, decimal.Decimal, string) (*models.User, error) {
				return nil, apperrors.ErrInsufficientFunds
			},
		}
		r := setupAdminRouter(NewAdminHandler(svc))

		rec := doRequest(r, "POST", "/admin/balance", `{"nickname":"trader_01","amount":"-99999"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INSUFFICIENT_FUNDS")
	})
}

func TestAdminHandler_AdminRights(t *testing.T) {
	t.Run("assign returns 200", func(t *testing.T) {
		r := setupAdminRouter(NewAdminHandler(&mockAdminService{}))

		rec := doRequest(r, "POST", "/admin/admins", `{"nickname":"helper"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		user := parseJSON(t, rec)["user"].(map[string]interface{})
		if user["is_admin"] != true {
			t.Error("expected is_admin true")
		}
	})

	t.Run("assign returns 403 for non-owner", func(t *testing.T) {
		svc := &mockAdminService{
			assignAdminFn: func(string, string, string) (*models.User, error) { return nil, apperrors.ErrForbidden },
		}
		r := setupAdminRouter(NewAdminHandler(svc))

		rec := doRequest(r, "POST", "/admin/admins", `{"nickname":"helper"}`)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("remove passes the path nickname", func(t *testing.T) {
		var got string
		svc := &mockAdminService{
			removeAdminFn: func(_, nickname, _ string) (*models.User, error) {
				got = nickname
				return &models.User{Nickname: nickname}, nil
			},
		}
		r := setupAdminRouter(NewAdminHandler(svc))

		rec := doRequest(r, "DELETE", "/admin/admins/helper", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got != "helper" {
			t.Errorf("expected nickname helper, got %q", got)
		}
	})

	t.Run("remove returns 400 for owner", func(t *testing.T) {
		svc := &mockAdminService{
			removeAdminFn: func(string, string, string) (*models.User, error) { return nil, apperrors.ErrOwnerImmutable },
		}
		r := setupAdminRouter(NewAdminHandler(svc))

		rec := doRequest(r, "DELETE", "/admin/admins/founder", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "OWNER_IMMUTABLE")
	})
}

func TestAdminHandler_Stats(t *testing.T) {
	svc := &mockAdminService{
		statsFn: func() (*services.PlatformStats, error) {
			return &services.PlatformStats{TotalUsers: 2, TotalBalance: decimal.RequireFromString("1250")}, nil
		},
	}
	r := setupAdminRouter(NewAdminHandler(svc))

	rec := doRequest(r, "GET", "/admin/stats", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	result := parseJSON(t, rec)
	if result["total_users"].(float64) != 2 || result["total_balance"] != "1250" {
		t.Errorf("unexpected stats %v", result)
	}
}

func TestAdminHandler_SendBulkEmail(t *testing.T) {
	t.Run("returns 202 with queued count", func(t *testing.T) {
		var got services.BulkEmailInput
		svc := &mockAdminService{
			sendBulkEmailFn: func(in services.BulkEmailInput) (int, error) {
				got = in
				return 2, nil
			},
		}
		r := setupAdminRouter(NewAdminHandler(svc))

		rec := doRequest(r, "POST", "/admin/emails",
			`{"subject":"News","body":"Hello","recipients":["a@example.com","b@example.com"]}`)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.SendToAll || len(got.Recipients) != 2 {
			t.Errorf("unexpected input %+v", got)
		}
		if parseJSON(t, rec)["queued"].(float64) != 2 {
			t.Error("expected queued 2")
		}
	})

	t.Run("returns 400 on invalid recipient", func(t *testing.T) {
		r := setupAdminRouter(NewAdminHandler(&mockAdminService{}))

		rec := doRequest(r, "POST", "/admin/emails", `{"subject":"News","body":"Hello","recipients":["nope"]}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 without subject", func(t *testing.T) {
		r := setupAdminRouter(NewAdminHandler(&mockAdminService{}))

		rec := doRequest(r, "POST", "/admin/emails", `{"body":"Hello","send_to_all":true}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
