package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/services"
)

type AdHandler struct {
	rewards *services.AdRewardService
	log     *logrus.Entry
}

func NewAdHandler(rewards *services.AdRewardService, log *logrus.Entry) *AdHandler {
	return &AdHandler{rewards: rewards, log: log}
}

type watchAdRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	AdType    string `json:"adType" binding:"required,oneof=auto manual"`
}

func (h *AdHandler) WatchAd(c *gin.Context) {
	var req watchAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}

	result, err := h.rewards.WatchAd(c.Request.Context(), req.AccountID, services.AdType(req.AdType))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
