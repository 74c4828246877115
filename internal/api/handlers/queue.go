package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/service"
	"github.com/codeclash/codeclash-backend/pkg/logger"
)

type QueueHandler struct {
	matchmaking *service.MatchmakingService
}

func NewQueueHandler(matchmaking *service.MatchmakingService) *QueueHandler {
	return &QueueHandler{matchmaking: matchmaking}
}

// Join 큐 참가
func (h *QueueHandler) Join(c *gin.Context) {
	userID := middleware.UserID(c)

	var req models.JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	subjectIDs := append([]string{userID}, req.TeammateIDs...)
	entry, err := h.matchmaking.Enqueue(subjectIDs, req.Mode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyQueued):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Already queued for this mode",
			})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		default:
			logger.Error("Failed to join queue", "userId", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to join queue",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"entryId":    entry.ID,
		"mode":       entry.Mode,
		"rating":     entry.Rating,
		"enqueuedAt": entry.EnqueuedAt,
	})
}

type leaveQueueRequest struct {
	Mode models.Mode `json:"mode" binding:"required"`
}

// Leave 큐 이탈
func (h *QueueHandler) Leave(c *gin.Context) {
	userID := middleware.UserID(c)

	var req leaveQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	if err := h.matchmaking.Dequeue(userID, req.Mode); err != nil {
		switch {
		case errors.Is(err, service.ErrNotQueued):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Not in the queue for this mode",
			})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		default:
			logger.Error("Failed to leave queue", "userId", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to leave queue",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"left": true,
		"mode": req.Mode,
	})
}

// Status 큐 상태 조회
func (h *QueueHandler) Status(c *gin.Context) {
	userID := middleware.UserID(c)
	mode := models.Mode(c.Query("mode"))

	status, err := h.matchmaking.Status(userID, mode)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		logger.Error("Failed to read queue status", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read queue status",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}
