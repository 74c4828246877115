package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/repository"
	"github.com/codeclash/codeclash-backend/pkg/logger"
)

type LeaderboardHandler struct {
	ratings *repository.RatingRepository
}

func NewLeaderboardHandler(ratings *repository.RatingRepository) *LeaderboardHandler {
	return &LeaderboardHandler{ratings: ratings}
}

// GetLeaderboard 모드별 리더보드 조회
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	mode := models.Mode(c.DefaultQuery("mode", string(models.ModeSolo)))
	if !mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown mode",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := h.ratings.Leaderboard(mode, limit)
	if err != nil {
		logger.Error("Failed to load leaderboard", "mode", mode, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load leaderboard",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":    mode,
		"entries": rows,
		"total":   len(rows),
	})
}
