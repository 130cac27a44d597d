package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/models"
	"adearn-backend/internal/services"
)

type AccountHandler struct {
	ledger  *services.Ledger
	rewards *services.AdRewardService
	reports *services.ReportService
	log     *logrus.Entry
}

func NewAccountHandler(ledger *services.Ledger, rewards *services.AdRewardService, reports *services.ReportService, log *logrus.Entry) *AccountHandler {
	return &AccountHandler{ledger: ledger, rewards: rewards, reports: reports, log: log}
}

// GetAccount returns the account with today's ad counter and the cooldown
// left before the next ad.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.rewards.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (h *AccountHandler) ListTransactions(c *gin.Context) {
	filter := models.TransactionFilter{
		AccountID: c.Query("accountId"),
		Type:      models.TransactionType(c.Query("type")),
		Limit:     queryLimit(c),
	}
	if filter.AccountID == "" {
		writeError(c, h.log, services.ErrInvalidAccount)
		return
	}

	transactions, err := h.ledger.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req models.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}

	account, err := h.ledger.CreateAccount(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": account})
}

// AdjustBalance applies a manual credit or debit.
func (h *AccountHandler) AdjustBalance(c *gin.Context) {
	var req models.AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}

	account, entry, err := h.ledger.Adjust(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":     account,
		"transaction": entry,
	})
}

// ListAccounts is the admin overview: newest accounts plus ledger totals.
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	overview, err := h.reports.Overview(c.Request.Context(), queryLimit(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": overview})
}

func (h *AccountHandler) TopEarners(c *gin.Context) {
	timeframe := services.Timeframe(c.DefaultQuery("timeframe", string(services.TimeframeAll)))
	board, err := h.reports.TopEarners(c.Request.Context(), timeframe, queryLimit(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": board})
}
