package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/models"
	"adearn-backend/internal/services"
)

type LinkHandler struct {
	links  *services.LinkService
	clicks *services.ClickService
	log    *logrus.Entry
}

func NewLinkHandler(links *services.LinkService, clicks *services.ClickService, log *logrus.Entry) *LinkHandler {
	return &LinkHandler{links: links, clicks: clicks, log: log}
}

// ListActive is the public link list, ordered by position.
func (h *LinkHandler) ListActive(c *gin.Context) {
	h.list(c, true)
}

func (h *LinkHandler) ListAll(c *gin.Context) {
	h.list(c, false)
}

func (h *LinkHandler) list(c *gin.Context, activeOnly bool) {
	links, err := h.links.List(c.Request.Context(), activeOnly)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"links": links})
}

func (h *LinkHandler) IssueTicket(c *gin.Context) {
	ticket, err := h.clicks.IssueTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

func (h *LinkHandler) Click(c *gin.Context) {
	var req models.ClickClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}

	link, err := h.clicks.Claim(c.Request.Context(), services.ClickClaim{
		LinkID:    req.ID,
		UserID:    req.UserID,
		Timestamp: req.Timestamp,
		Signature: req.Hash,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"result": link,
	})
}

func (h *LinkHandler) Create(c *gin.Context) {
	var req models.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}

	link, err := h.links.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"link": link})
}

func (h *LinkHandler) Update(c *gin.Context) {
	var req models.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}

	link, err := h.links.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"link": link})
}

func (h *LinkHandler) Delete(c *gin.Context) {
	if err := h.links.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *LinkHandler) ListClicks(c *gin.Context) {
	clicks, err := h.clicks.ListClicks(c.Request.Context(), models.ClickFilter{
		UserID: c.Query("userId"),
		LinkID: c.Query("linkId"),
		Limit:  queryLimit(c),
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"clicks": clicks})
}
