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

type SubmissionHandler struct {
	judge *service.JudgeService
}

func NewSubmissionHandler(judge *service.JudgeService) *SubmissionHandler {
	return &SubmissionHandler{judge: judge}
}

// CreateSubmission 코드 제출
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	userID := middleware.UserID(c)
	matchID := c.Param("id")

	var req models.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	sub, err := h.judge.Submit(userID, matchID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMatchNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Match not found",
			})
		case errors.Is(err, service.ErrMatchNotLive):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Match is not accepting submissions",
			})
		case errors.Is(err, service.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "You do not play in this match",
			})
		case errors.Is(err, service.ErrProblemNotInMatch):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Problem does not belong to this match",
			})
		case errors.Is(err, service.ErrJudgingBusy):
			c.Header("Retry-After", "5")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Judging queue is full, try again shortly",
			})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		default:
			logger.Error("Failed to create submission", "userId", userID, "matchId", matchID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create submission",
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":         sub.ID,
		"matchId":    sub.MatchID,
		"problemId":  sub.ProblemID,
		"verdict":    sub.Verdict,
		"seq":        sub.Seq,
		"enqueuedAt": sub.EnqueuedAt,
	})
}

// GetSubmission 제출 조회 (본인 것만)
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	userID := middleware.UserID(c)
	id := c.Param("id")

	sub, err := h.judge.Submission(userID, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Submission not found",
			})
		case errors.Is(err, service.ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "You may only view your own submissions",
			})
		default:
			logger.Error("Failed to load submission", "submissionId", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load submission",
			})
		}
		return
	}

	c.JSON(http.StatusOK, sub)
}

// ListMatchSubmissions 매치 내 본인 제출 목록 조회
func (h *SubmissionHandler) ListMatchSubmissions(c *gin.Context) {
	userID := middleware.UserID(c)
	matchID := c.Param("id")

	subs, err := h.judge.MatchSubmissions(userID, matchID)
	if err != nil {
		logger.Error("Failed to list submissions", "matchId", matchID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list submissions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matchId":     matchID,
		"submissions": subs,
		"total":       len(subs),
	})
}
