package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/repository"
	"github.com/codeclash/codeclash-backend/internal/service"
	"github.com/codeclash/codeclash-backend/pkg/logger"
)

type UserHandler struct {
	userService *service.UserService
	ratings     *repository.RatingRepository
}

func NewUserHandler(userService *service.UserService, ratings *repository.RatingRepository) *UserHandler {
	return &UserHandler{userService: userService, ratings: ratings}
}

// GetCurrentUser 현재 사용자 조회 (모드별 레이팅 포함)
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID := middleware.UserID(c)

	user, err := h.userService.GetByID(userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}
		logger.Error("Failed to load user", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load user",
		})
		return
	}

	ratings := gin.H{}
	for _, mode := range []models.Mode{models.ModeSolo, models.ModeTeam} {
		rec, err := h.ratings.Find(userID, mode)
		if err != nil {
			logger.Error("Failed to load rating", "userId", userID, "mode", mode, "error", err)
			continue
		}
		if rec == nil {
			continue
		}
		ratings[string(mode)] = gin.H{
			"rating":        rec.Rating,
			"tier":          models.TierForRating(rec.Rating),
			"matchesPlayed": rec.MatchesPlayed,
			"wins":          rec.Wins,
			"losses":        rec.Losses,
			"streak":        rec.Streak,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"createdAt": user.CreatedAt,
		"ratings":   ratings,
	})
}
