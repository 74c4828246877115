package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/internal/repository"
	"github.com/codeclash/codeclash-backend/pkg/executor"
)

const judgeShardBuffer = 1024

// a subject firing more than this many submissions inside the window gets
// flagged in the logs for review
const (
	burstWindowMinutes = 1
	burstLimit         = 15
)

// JudgeConfig 채점 파라미터
type JudgeConfig struct {
	Workers        int           // bounded worker pool size
	MaxAttempts    int           // execution attempts before infra failure
	ExecTimeout    time.Duration // per-execution deadline
	SuspicionFloor time.Duration // ACs faster than this after start are flagged
}

func (c *JudgeConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = 60 * time.Second
	}
	if c.SuspicionFloor <= 0 {
		c.SuspicionFloor = 10 * time.Second
	}
}

// JudgeService accepts submissions, judges them on a bounded worker pool
// and feeds terminal verdicts into the match engine. Jobs are sharded by
// (subject, problem) so submissions for the same key are judged strictly
// in enqueue order while different keys run concurrently.
type JudgeService struct {
	subs    SubmissionStore
	catalog ProblemCatalog
	exec    CodeExecutor
	engine  *MatchEngine
	bcast   Broadcaster
	logger  *zap.Logger
	cfg     JudgeConfig
	now     func() time.Time

	shards []chan *models.Submission

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewJudgeService 채점 서비스 생성
func NewJudgeService(
	subs SubmissionStore,
	catalog ProblemCatalog,
	exec CodeExecutor,
	engine *MatchEngine,
	bcast Broadcaster,
	cfg JudgeConfig,
) *JudgeService {
	logger, _ := zap.NewProduction()
	cfg.applyDefaults()

	shards := make([]chan *models.Submission, cfg.Workers)
	for i := range shards {
		shards[i] = make(chan *models.Submission, judgeShardBuffer)
	}

	return &JudgeService{
		subs:     subs,
		catalog:  catalog,
		exec:     exec,
		engine:   engine,
		bcast:    bcast,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		shards:   shards,
		stopChan: make(chan struct{}),
	}
}

// Start 채점 워커 시작
func (s *JudgeService) Start() {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return
	}
	s.running = true
	s.runMu.Unlock()

	s.logger.Info("Starting judge workers", zap.Int("workers", s.cfg.Workers))

	for i, shard := range s.shards {
		s.wg.Add(1)
		go s.worker(i, shard)
	}
}

// Stop drains nothing: pending jobs in the shards are abandoned. Their
// submissions stay pending in the store and are not picked up again on
// startup; the subject resubmits, which is safe because verdict
// application is idempotent per submission.
func (s *JudgeService) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	s.runMu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Judge workers stopped")
}

// Submit validates and enqueues a submission for judging. The returned
// submission carries its assigned sequence number and pending verdict.
func (s *JudgeService) Submit(subjectID, matchID string, req *models.CreateSubmissionRequest) (*models.Submission, error) {
	if req.ProblemID == "" || req.Code == "" || req.Language == "" {
		return nil, fmt.Errorf("%w: problemId, code and language are required", ErrInvalidInput)
	}

	match, err := s.engine.Snapshot(matchID)
	if err != nil {
		return nil, err
	}
	if match.State != models.MatchStateLive {
		return nil, ErrMatchNotLive
	}
	if !match.HasParticipant(subjectID) {
		return nil, ErrNotParticipant
	}
	if !match.HasProblem(req.ProblemID) {
		return nil, ErrProblemNotInMatch
	}

	sub := &models.Submission{
		ID:         uuid.New().String(),
		MatchID:    matchID,
		SubjectID:  subjectID,
		ProblemID:  req.ProblemID,
		Code:       req.Code,
		Language:   req.Language,
		EnqueuedAt: s.now(),
		Verdict:    models.VerdictPending,
	}

	// Create assigns the monotonic sequence; the durable log is the source
	// of truth for replay order.
	if err := s.subs.Create(sub); err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	if recent, err := s.subs.CountRecentBySubject(subjectID, burstWindowMinutes); err == nil && recent > burstLimit {
		s.logger.Warn("Submission burst detected",
			zap.String("subjectId", subjectID),
			zap.Int("recent", recent))
	}

	shard := s.shards[s.shardFor(sub.SubjectID, sub.ProblemID)]
	select {
	case shard <- sub:
	default:
		// backpressure: the shard is full. The submission is already on
		// record, so close it out as an infrastructure failure rather
		// than leaving it pending forever.
		s.failInfra(sub, "judging queue is full")
		return nil, ErrJudgingBusy
	}

	s.logger.Info("Submission queued",
		zap.String("submissionId", sub.ID),
		zap.String("matchId", matchID),
		zap.String("problemId", req.ProblemID))

	return sub, nil
}

// shardFor keeps all submissions for one (subject, problem) on the same
// worker, which gives per-key FIFO without a global serial queue.
func (s *JudgeService) shardFor(subjectID, problemID string) int {
	h := fnv.New32a()
	h.Write([]byte(subjectID))
	h.Write([]byte{'|'})
	h.Write([]byte(problemID))
	return int(h.Sum32() % uint32(len(s.shards)))
}

func (s *JudgeService) worker(id int, shard chan *models.Submission) {
	defer s.wg.Done()

	for {
		select {
		case sub := <-shard:
			s.judge(sub)
		case <-s.stopChan:
			return
		}
	}
}

// judge runs the full pipeline for one submission: mark running, execute
// with retries, persist the terminal verdict, hand it to the match engine.
func (s *JudgeService) judge(sub *models.Submission) {
	if err := s.subs.UpdateVerdict(sub.ID, models.VerdictRunning, 0, 0, false, false); err != nil {
		s.logger.Error("Failed to mark submission running",
			zap.String("submissionId", sub.ID),
			zap.Error(err))
	} else {
		sub.Verdict = models.VerdictRunning
		s.bcast.Publish(SubjectTopic(sub.SubjectID), "verdict", map[string]interface{}{
			"matchId":      sub.MatchID,
			"submissionId": sub.ID,
			"problemId":    sub.ProblemID,
			"verdict":      models.VerdictRunning,
		})
	}

	problem, err := s.catalog.FindByID(sub.ProblemID)
	if err != nil || problem == nil {
		s.failInfra(sub, "problem lookup failed")
		return
	}
	cases, err := s.catalog.TestCases(sub.ProblemID)
	if err != nil || len(cases) == 0 {
		s.failInfra(sub, "test case lookup failed")
		return
	}

	execCases := make([]executor.TestCase, len(cases))
	for i, tc := range cases {
		execCases[i] = executor.TestCase{Input: tc.Input, Expected: tc.Expected}
	}

	req := executor.ExecuteRequest{
		SubmissionID:  sub.ID,
		Code:          sub.Code,
		Language:      sub.Language,
		TimeLimitMs:   problem.TimeLimitMs,
		MemoryLimitKb: problem.MemoryLimitKb,
		TestCases:     execCases,
	}

	var resp *executor.ExecuteResponse
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExecTimeout)
		resp, err = s.exec.Execute(ctx, req)
		cancel()
		if err == nil {
			break
		}
		s.logger.Warn("Execution attempt failed",
			zap.String("submissionId", sub.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	if err != nil {
		s.failInfra(sub, "executor unavailable")
		return
	}

	verdict := models.Verdict(resp.Verdict)
	if !verdict.Terminal() {
		s.logger.Error("Executor returned non-terminal verdict",
			zap.String("submissionId", sub.ID),
			zap.String("verdict", resp.Verdict))
		s.failInfra(sub, "executor returned an unusable verdict")
		return
	}

	suspicious := s.isSuspicious(sub, verdict)
	s.settle(sub, verdict, resp.ExecutionTimeMs, resp.MemoryKb, false, suspicious)
}

// isSuspicious flags an AC that lands implausibly fast after match start.
// Flagging never blocks scoring; it only marks the submission for review.
func (s *JudgeService) isSuspicious(sub *models.Submission, verdict models.Verdict) bool {
	if !verdict.Accepted() {
		return false
	}
	match, err := s.engine.Snapshot(sub.MatchID)
	if err != nil || match.StartedAt == nil {
		return false
	}
	return sub.EnqueuedAt.Sub(*match.StartedAt) < s.cfg.SuspicionFloor
}

// failInfra closes a submission out as a runtime error caused by the
// judging infrastructure. The verdict is terminal but the scoring engine
// never charges penalty for it.
func (s *JudgeService) failInfra(sub *models.Submission, reason string) {
	s.logger.Error("Judging failed, recording infra RE",
		zap.String("submissionId", sub.ID),
		zap.String("reason", reason))
	s.settle(sub, models.VerdictRE, 0, 0, true, false)
}

// settle persists the terminal verdict and applies it to the match.
func (s *JudgeService) settle(sub *models.Submission, verdict models.Verdict, execMs, memKb int, infraFailure, suspicious bool) {
	if err := s.subs.UpdateVerdict(sub.ID, verdict, execMs, memKb, infraFailure, suspicious); err != nil {
		if errors.Is(err, repository.ErrTerminalVerdict) {
			// a concurrent writer already finalized it; nothing to apply
			s.logger.Warn("Submission already terminal",
				zap.String("submissionId", sub.ID))
			return
		}
		s.logger.Error("Failed to persist verdict",
			zap.String("submissionId", sub.ID),
			zap.String("verdict", string(verdict)),
			zap.Error(err))
		return
	}

	sub.Verdict = verdict
	sub.ExecutionTimeMs = execMs
	sub.MemoryKb = memKb
	sub.InfraFailure = infraFailure
	sub.Suspicious = suspicious

	if err := s.engine.ApplyVerdict(sub); err != nil {
		// cancelled matches drain silently inside the engine; anything
		// else here means the verdict could not land
		s.logger.Error("Failed to apply verdict to match",
			zap.String("submissionId", sub.ID),
			zap.String("matchId", sub.MatchID),
			zap.Error(err))
	}
}

// Submission returns one submission. Players may only read their own.
func (s *JudgeService) Submission(requesterID, submissionID string) (*models.Submission, error) {
	sub, err := s.subs.FindByID(submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return nil, ErrSubmissionNotFound
	}
	if sub.SubjectID != requesterID {
		return nil, ErrUnauthorized
	}
	return sub, nil
}

// MatchSubmissions returns a participant's view of a match's submission
// log: their own submissions only, in enqueue order.
func (s *JudgeService) MatchSubmissions(requesterID, matchID string) ([]*models.Submission, error) {
	all, err := s.subs.FindByMatch(matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}

	own := make([]*models.Submission, 0, len(all))
	for _, sub := range all {
		if sub.SubjectID == requesterID {
			own = append(own, sub)
		}
	}
	return own, nil
}
