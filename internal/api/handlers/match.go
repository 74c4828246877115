package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/codeclash/codeclash-backend/internal/repository"
	"github.com/codeclash/codeclash-backend/internal/service"
	"github.com/codeclash/codeclash-backend/pkg/logger"
)

type MatchHandler struct {
	engine  *service.MatchEngine
	matches *repository.MatchRepository
}

func NewMatchHandler(engine *service.MatchEngine, matches *repository.MatchRepository) *MatchHandler {
	return &MatchHandler{engine: engine, matches: matches}
}

// GetMatch 매치 조회
// Live matches come from the engine's in-memory snapshot; anything older
// is served from the database.
func (h *MatchHandler) GetMatch(c *gin.Context) {
	id := c.Param("id")

	match, err := h.engine.Snapshot(id)
	if err != nil && errors.Is(err, service.ErrMatchNotFound) {
		match, err = h.matches.FindByID(id)
	}
	if err != nil {
		logger.Error("Failed to load match", "matchId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load match",
		})
		return
	}
	if match == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Match not found",
		})
		return
	}

	c.JSON(http.StatusOK, match)
}

// GetStandings 현재 스코어보드 조회
func (h *MatchHandler) GetStandings(c *gin.Context) {
	id := c.Param("id")

	standings, err := h.engine.Standings(id)
	if err != nil {
		if errors.Is(err, service.ErrMatchNotFound) {
			// finished matches keep their final scores in the database
			match, dbErr := h.matches.FindByID(id)
			if dbErr == nil && match != nil {
				c.JSON(http.StatusOK, gin.H{
					"matchId":   id,
					"standings": match.FinalScores,
				})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Match not found",
			})
			return
		}
		logger.Error("Failed to compute standings", "matchId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to compute standings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matchId":   id,
		"standings": standings,
	})
}

// ListMyMatches 내 매치 이력 조회
func (h *MatchHandler) ListMyMatches(c *gin.Context) {
	userID := middleware.UserID(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	matches, err := h.matches.FindBySubject(userID, limit, offset)
	if err != nil {
		logger.Error("Failed to list matches", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list matches",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"total":   len(matches),
	})
}
