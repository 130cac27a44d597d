package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/models"
	"adearn-backend/internal/services"
)

type WithdrawalHandler struct {
	withdrawals *services.WithdrawalService
	log         *logrus.Entry
}

func NewWithdrawalHandler(withdrawals *services.WithdrawalService, log *logrus.Entry) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, log: log}
}

type withdrawalView struct {
	*models.Withdrawal
	AmountLocal decimal.Decimal `json:"amountLocal"`
}

func (h *WithdrawalHandler) view(w *models.Withdrawal) withdrawalView {
	return withdrawalView{Withdrawal: w, AmountLocal: h.withdrawals.LocalAmount(w.Amount)}
}

func (h *WithdrawalHandler) views(list []*models.Withdrawal) []withdrawalView {
	out := make([]withdrawalView, 0, len(list))
	for _, w := range list {
		out = append(out, h.view(w))
	}
	return out
}

type paymentMethodView struct {
	services.PaymentMethod
	MinAmount decimal.Decimal `json:"minAmount"`
	MaxAmount decimal.Decimal `json:"maxAmount"`
}

func (h *WithdrawalHandler) PaymentMethods(c *gin.Context) {
	methods := services.PaymentMethods()
	out := make([]paymentMethodView, 0, len(methods))
	for _, m := range methods {
		lo, hi := h.withdrawals.Bounds(m.Class)
		out = append(out, paymentMethodView{PaymentMethod: m, MinAmount: lo, MaxAmount: hi})
	}

	c.JSON(http.StatusOK, gin.H{"result": out})
}

func (h *WithdrawalHandler) Create(c *gin.Context) {
	var req models.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}

	w, err := h.withdrawals.Create(c.Request.Context(), services.WithdrawalInput{
		AccountID: req.AccountExternalID,
		Method:    req.Method,
		Network:   req.Network,
		Amount:    req.Amount,
		Recipient: req.Recipient,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"withdrawal": h.view(w)})
}

// List returns one account's requests, newest first.
func (h *WithdrawalHandler) List(c *gin.Context) {
	accountID := c.Query("accountId")
	if accountID == "" {
		writeError(c, h.log, services.ErrInvalidAccount)
		return
	}

	h.list(c, models.WithdrawalFilter{AccountID: accountID, Limit: queryLimit(c)})
}

// ListAll is the admin queue, optionally filtered by status.
func (h *WithdrawalHandler) ListAll(c *gin.Context) {
	h.list(c, models.WithdrawalFilter{
		Status: models.WithdrawalStatus(c.Query("status")),
		Limit:  queryLimit(c),
	})
}

func (h *WithdrawalHandler) list(c *gin.Context, filter models.WithdrawalFilter) {
	list, err := h.withdrawals.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": h.views(list)})
}

func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	var req models.CancelWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}

	result, err := h.withdrawals.Cancel(c.Request.Context(), req.ID, req.AccountExternalID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *WithdrawalHandler) Resolve(c *gin.Context) {
	var req models.ResolveWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}

	w, err := h.withdrawals.Resolve(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"withdrawal": h.view(w)})
}
