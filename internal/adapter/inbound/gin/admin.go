package gin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/inbound"
)

// adminAdapter implements inbound.AdminHttpPort.
type adminAdapter struct {
	metering inbound.MeteringDomain
	credit   inbound.CreditDomain
}

// NewAdminAdapter creates a new admin HTTP adapter.
func NewAdminAdapter(metering inbound.MeteringDomain, credit inbound.CreditDomain) inbound.AdminHttpPort {
	return &adminAdapter{metering: metering, credit: credit}
}

// RegisterRoutes registers admin routes on a group guarded by AdminAuth.
func (a *adminAdapter) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/deficits", a.ListDeficits)
	r.GET("/reconciliations", a.ListReconciliations)
	r.POST("/reconciliations/:reservation_id", a.ResolveReconciliation)
	r.POST("/credits", a.GrantCredits)
	r.GET("/accounts/:account_id/balance", a.GetAccountBalance)
}

func (a *adminAdapter) ListDeficits(c *gin.Context) {
	deficits, err := a.metering.ListDeficits(c.Request.Context(), queryLimit(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deficits": deficits})
}

func (a *adminAdapter) ListReconciliations(c *gin.Context) {
	includeResolved := c.Query("include_resolved") == "true"
	outcomes, err := a.metering.ListAmbiguous(c.Request.Context(), queryLimit(c), includeResolved)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliations": outcomes})
}

type resolveRequest struct {
	ActualCost *int64 `json:"actual_cost" binding:"required"`
}

func (a *adminAdapter) ResolveReconciliation(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	settlement, err := a.metering.Reconcile(c.Request.Context(), c.Param("reservation_id"), *req.ActualCost)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

type grantRequest struct {
	AccountID string          `json:"account_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	EventID   string          `json:"event_id" binding:"required"`
}

func (a *adminAdapter) GrantCredits(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	issue(c, a.credit, model.GrantRequest{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		EventID:   req.EventID,
		Source:    model.GrantSourceAdmin,
	})
}

func (a *adminAdapter) GetAccountBalance(c *gin.Context) {
	accountID := c.Param("account_id")
	balance, err := a.metering.Balance(c.Request.Context(), accountID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "balance": balance})
}

// queryLimit parses ?limit. The domain clamps it; a malformed value means default.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}

