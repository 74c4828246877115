package repository

import (
	"database/sql"
	"fmt"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/database"
)

type SubmissionRepository struct {
	db *database.DB
}

func NewSubmissionRepository(db *database.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create appends a submission to the log. The seq column is a BIGSERIAL,
// so the database hands back a monotonic enqueue order; enqueued_at is the
// insert timestamp.
func (r *SubmissionRepository) Create(sub *models.Submission) error {
	query := `
		INSERT INTO submissions (id, match_id, subject_id, problem_id, code, language, verdict)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq, enqueued_at, created_at, updated_at
	`

	err := r.db.QueryRow(query,
		sub.ID,
		sub.MatchID,
		sub.SubjectID,
		sub.ProblemID,
		sub.Code,
		sub.Language,
		sub.Verdict,
	).Scan(&sub.Seq, &sub.EnqueuedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}

	return nil
}

// UpdateVerdict moves a submission's verdict forward. The WHERE clause
// refuses to touch rows whose verdict is already terminal, so a terminal
// verdict is immutable at the storage layer too.
func (r *SubmissionRepository) UpdateVerdict(
	id string,
	verdict models.Verdict,
	executionTimeMs, memoryKb int,
	infraFailure, suspicious bool,
) error {
	query := `
		UPDATE submissions
		SET verdict = $1,
		    execution_time_ms = $2,
		    memory_kb = $3,
		    infra_failure = $4,
		    suspicious = $5,
		    updated_at = NOW()
		WHERE id = $6
		  AND verdict IN ('pending', 'compiling', 'running')
	`

	result, err := r.db.Exec(query, verdict, executionTimeMs, memoryKb, infraFailure, suspicious, id)
	if err != nil {
		return fmt.Errorf("failed to update verdict: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check verdict update: %w", err)
	}
	if affected == 0 {
		return ErrTerminalVerdict
	}

	return nil
}

// FindByID ID로 제출 조회
func (r *SubmissionRepository) FindByID(id string) (*models.Submission, error) {
	query := `
		SELECT id, match_id, subject_id, problem_id, code, language, seq, enqueued_at,
		       verdict, execution_time_ms, memory_kb, infra_failure, suspicious,
		       created_at, updated_at
		FROM submissions
		WHERE id = $1
	`

	sub := &models.Submission{}
	err := r.db.QueryRow(query, id).Scan(
		&sub.ID,
		&sub.MatchID,
		&sub.SubjectID,
		&sub.ProblemID,
		&sub.Code,
		&sub.Language,
		&sub.Seq,
		&sub.EnqueuedAt,
		&sub.Verdict,
		&sub.ExecutionTimeMs,
		&sub.MemoryKb,
		&sub.InfraFailure,
		&sub.Suspicious,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}

	return sub, nil
}

// FindByMatch returns the full submission log of a match in enqueue order,
// which is what the scoring engine replays.
func (r *SubmissionRepository) FindByMatch(matchID string) ([]*models.Submission, error) {
	query := `
		SELECT id, match_id, subject_id, problem_id, code, language, seq, enqueued_at,
		       verdict, execution_time_ms, memory_kb, infra_failure, suspicious,
		       created_at, updated_at
		FROM submissions
		WHERE match_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.Query(query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		sub := &models.Submission{}
		if err := rows.Scan(
			&sub.ID,
			&sub.MatchID,
			&sub.SubjectID,
			&sub.ProblemID,
			&sub.Code,
			&sub.Language,
			&sub.Seq,
			&sub.EnqueuedAt,
			&sub.Verdict,
			&sub.ExecutionTimeMs,
			&sub.MemoryKb,
			&sub.InfraFailure,
			&sub.Suspicious,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// CountRecentBySubject 최근 윈도우 내 제출 개수 (quota 확인용)
func (r *SubmissionRepository) CountRecentBySubject(subjectID string, windowMinutes int) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM submissions
		WHERE subject_id = $1
		  AND created_at > NOW() - INTERVAL '1 minute' * $2
	`

	var count int
	if err := r.db.QueryRow(query, subjectID, windowMinutes).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	return count, nil
}
