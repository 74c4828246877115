package repository

import (
	"database/sql"
	"fmt"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/database"
)

// ProblemRepository is a read-only view over the problem catalog. Problem
// content management lives in another service; this side only looks up
// metadata and hidden test cases.
type ProblemRepository struct {
	db *database.DB
}

func NewProblemRepository(db *database.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

// FindByID 문제 메타데이터 조회
func (r *ProblemRepository) FindByID(id string) (*models.Problem, error) {
	query := `
		SELECT id, title, difficulty, time_limit_ms, memory_limit_kb
		FROM problems
		WHERE id = $1
	`

	p := &models.Problem{}
	err := r.db.QueryRow(query, id).Scan(
		&p.ID,
		&p.Title,
		&p.Difficulty,
		&p.TimeLimitMs,
		&p.MemoryLimitKb,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find problem: %w", err)
	}

	return p, nil
}

// PickRandom 랜덤 문제 선택 (매치 문제 구성용)
func (r *ProblemRepository) PickRandom(n int) ([]string, error) {
	query := `
		SELECT id
		FROM problems
		ORDER BY RANDOM()
		LIMIT $1
	`

	rows, err := r.db.Query(query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to pick problems: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan problem id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) < n {
		return nil, fmt.Errorf("catalog has only %d of %d requested problems", len(ids), n)
	}

	return ids, nil
}

// TestCases returns the hidden test cases for a problem in order.
func (r *ProblemRepository) TestCases(problemID string) ([]models.TestCase, error) {
	query := `
		SELECT problem_id, ordinal, input, expected
		FROM test_cases
		WHERE problem_id = $1
		ORDER BY ordinal ASC
	`

	rows, err := r.db.Query(query, problemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test cases: %w", err)
	}
	defer rows.Close()

	var cases []models.TestCase
	for rows.Next() {
		var tc models.TestCase
		if err := rows.Scan(&tc.ProblemID, &tc.Ordinal, &tc.Input, &tc.Expected); err != nil {
			return nil, fmt.Errorf("failed to scan test case: %w", err)
		}
		cases = append(cases, tc)
	}

	return cases, rows.Err()
}
