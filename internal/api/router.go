package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/codeclash/codeclash-backend/internal/api/handlers"
	"github.com/codeclash/codeclash-backend/internal/api/middleware"
	"github.com/codeclash/codeclash-backend/internal/config"
	"github.com/codeclash/codeclash-backend/internal/repository"
	"github.com/codeclash/codeclash-backend/internal/service"
	"github.com/codeclash/codeclash-backend/internal/websocket"
	"github.com/codeclash/codeclash-backend/pkg/database"
	"github.com/codeclash/codeclash-backend/pkg/distributed"
	"github.com/codeclash/codeclash-backend/pkg/executor"
	jwtutil "github.com/codeclash/codeclash-backend/pkg/jwt"
	"github.com/codeclash/codeclash-backend/pkg/logger"
)

// SetupRouter API 라우터 설정
// The returned stop function shuts down the background loops (matchmaking,
// match engine, judge workers) in dependency order.
func SetupRouter(cfg *config.Config, db *database.DB, redisClient *redis.Client) (*gin.Engine, func()) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Executor 클라이언트 초기화
	executorClient := executor.NewClient(cfg.ExecutorURL, cfg.ExecutorTimeout)

	// Repository 초기화
	userRepo := repository.NewUserRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	ratingRepo := repository.NewRatingRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	problemRepo := repository.NewProblemRepository(db)

	// WebSocket Hub 초기화 (시작은 presence 연결 뒤)
	wsHub := websocket.NewHub()

	// Service 초기화
	jwtManager := jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	userService := service.NewUserService(userRepo, jwtManager)

	scoringEngine := service.NewScoringEngine()
	ratingEngine := service.NewRatingEngine(float64(cfg.KFactor))

	matchEngine := service.NewMatchEngine(
		matchRepo,
		ratingRepo,
		wsHub,
		scoringEngine,
		ratingEngine,
		cfg.MatchDuration,
		cfg.FogOfProgress,
	)
	matchEngine.Start()

	// connects and disconnects show up as participant activity
	wsHub.SetPresenceListener(matchEngine)
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// 분산 락 (Redis가 있을 때만)
	var lockMgr *distributed.RedisLockManager
	if redisClient != nil {
		lockMgr = distributed.NewRedisLockManager(redisClient)
	}

	matchmakingService := service.NewMatchmakingService(
		matchEngine,
		ratingRepo,
		queueRepo,
		problemRepo,
		wsHub,
		lockMgr,
		service.MatchmakingConfig{
			Interval:         cfg.MatchmakingInterval,
			ToleranceBase:    cfg.ToleranceBase,
			ToleranceStep:    cfg.ToleranceStep,
			ToleranceCap:     cfg.ToleranceCap,
			StaleAfter:       cfg.QueueStaleAfter,
			ProblemsPerMatch: cfg.ProblemsPerMatch,
		},
	)
	// 재시작 전 대기 중이던 큐 엔트리 복구
	if waiting, err := queueRepo.FindWaiting(); err != nil {
		logger.Error("Failed to restore queue entries", "error", err)
	} else {
		matchmakingService.Restore(waiting)
	}

	matchmakingService.Start()
	logger.Info("MatchmakingService started", "interval", cfg.MatchmakingInterval)

	judgeService := service.NewJudgeService(
		submissionRepo,
		problemRepo,
		executorClient,
		matchEngine,
		wsHub,
		service.JudgeConfig{
			Workers:        cfg.JudgeWorkers,
			MaxAttempts:    cfg.JudgeRetries,
			ExecTimeout:    cfg.ExecutorTimeout,
			SuspicionFloor: cfg.SuspicionFloor,
		},
	)
	judgeService.Start()
	logger.Info("JudgeService started", "workers", cfg.JudgeWorkers)

	// Handler 초기화
	authHandler := handlers.NewAuthHandler(userService)
	userHandler := handlers.NewUserHandler(userService, ratingRepo)
	queueHandler := handlers.NewQueueHandler(matchmakingService)
	matchHandler := handlers.NewMatchHandler(matchEngine, matchRepo)
	submissionHandler := handlers.NewSubmissionHandler(judgeService)
	leaderboardHandler := handlers.NewLeaderboardHandler(ratingRepo)
	wsHandler := handlers.NewWebSocketHandler(wsHub)

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// WebSocket endpoint
		v1.GET("/ws", middleware.Auth(cfg), wsHandler.HandleWebSocket)

		// Auth routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
		}

		// Queue routes
		queue := v1.Group("/queue")
		queue.Use(middleware.Auth(cfg), middleware.QueueRateLimit())
		{
			queue.POST("/join", queueHandler.Join)
			queue.POST("/leave", queueHandler.Leave)
			queue.GET("/status", queueHandler.Status)
		}

		// Match routes
		matches := v1.Group("/matches")
		{
			matches.GET("/:id", matchHandler.GetMatch)
			matches.GET("/:id/standings", matchHandler.GetStandings)
			matches.POST("/:id/submissions", middleware.Auth(cfg), middleware.SubmissionRateLimit(), submissionHandler.CreateSubmission)
			matches.GET("/:id/submissions", middleware.Auth(cfg), submissionHandler.ListMatchSubmissions)
		}

		// Submission routes
		submissions := v1.Group("/submissions")
		submissions.Use(middleware.Auth(cfg))
		{
			submissions.GET("/:id", submissionHandler.GetSubmission)
		}

		// Leaderboard routes
		leaderboard := v1.Group("/leaderboard")
		{
			leaderboard.GET("", leaderboardHandler.GetLeaderboard)
		}

		// User routes
		users := v1.Group("/users")
		users.Use(middleware.Auth(cfg))
		{
			users.GET("/me", userHandler.GetCurrentUser)
			users.GET("/me/matches", matchHandler.ListMyMatches)
		}
	}

	stop := func() {
		matchmakingService.Stop()
		judgeService.Stop()
		matchEngine.Stop()
	}

	return router, stop
}
