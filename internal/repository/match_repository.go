package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/database"
)

type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Create 새 매치 저장 (waiting 상태)
func (r *MatchRepository) Create(match *models.Match) error {
	teamIDs, err := json.Marshal(match.TeamIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal team ids: %w", err)
	}

	query := `
		INSERT INTO matches (id, mode, state, participant_ids, team_ids, problem_ids)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err = r.db.QueryRow(query,
		match.ID,
		match.Mode,
		match.State,
		pq.Array(match.ParticipantIDs),
		teamIDs,
		pq.Array(match.ProblemIDs),
	).Scan(&match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}

	return nil
}

// UpdateState 매치 상태 전이 저장
func (r *MatchRepository) UpdateState(matchID string, state models.MatchState, startedAt, endsAt *time.Time) error {
	query := `
		UPDATE matches
		SET state = $1,
		    started_at = COALESCE($2, started_at),
		    ends_at = COALESCE($3, ends_at)
		WHERE id = $4
	`

	_, err := r.db.Exec(query, state, startedAt, endsAt, matchID)
	if err != nil {
		return fmt.Errorf("failed to update match state: %w", err)
	}

	return nil
}

// SaveResult 최종 스코어와 레이팅 변동 저장
// Matches are archived, never deleted: the terminal row keeps the full
// result for replay and audit.
func (r *MatchRepository) SaveResult(matchID string, finalScores []models.Standing, ratingDeltas map[string]int) error {
	scores, err := json.Marshal(finalScores)
	if err != nil {
		return fmt.Errorf("failed to marshal final scores: %w", err)
	}
	deltas, err := json.Marshal(ratingDeltas)
	if err != nil {
		return fmt.Errorf("failed to marshal rating deltas: %w", err)
	}

	query := `
		UPDATE matches
		SET final_scores = $1, rating_deltas = $2
		WHERE id = $3
	`

	if _, err := r.db.Exec(query, scores, deltas, matchID); err != nil {
		return fmt.Errorf("failed to save match result: %w", err)
	}

	return nil
}

// FindByID ID로 매치 찾기
func (r *MatchRepository) FindByID(id string) (*models.Match, error) {
	query := `
		SELECT id, mode, state, participant_ids, team_ids, problem_ids,
		       started_at, ends_at, final_scores, rating_deltas, created_at
		FROM matches
		WHERE id = $1
	`

	match := &models.Match{}
	var teamIDs, finalScores, ratingDeltas []byte

	err := r.db.QueryRow(query, id).Scan(
		&match.ID,
		&match.Mode,
		&match.State,
		pq.Array(&match.ParticipantIDs),
		&teamIDs,
		pq.Array(&match.ProblemIDs),
		&match.StartedAt,
		&match.EndsAt,
		&finalScores,
		&ratingDeltas,
		&match.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	if len(teamIDs) > 0 {
		if err := json.Unmarshal(teamIDs, &match.TeamIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal team ids: %w", err)
		}
	}
	if len(finalScores) > 0 {
		if err := json.Unmarshal(finalScores, &match.FinalScores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal final scores: %w", err)
		}
	}
	if len(ratingDeltas) > 0 {
		if err := json.Unmarshal(ratingDeltas, &match.RatingDeltas); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rating deltas: %w", err)
		}
	}

	return match, nil
}

// FindBySubject 특정 참가자의 매치 목록 (최근 순)
func (r *MatchRepository) FindBySubject(subjectID string, limit, offset int) ([]*models.Match, error) {
	query := `
		SELECT id, mode, state, participant_ids, problem_ids, started_at, ends_at, created_at
		FROM matches
		WHERE $1 = ANY(participant_ids)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(query, subjectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		match := &models.Match{}
		if err := rows.Scan(
			&match.ID,
			&match.Mode,
			&match.State,
			pq.Array(&match.ParticipantIDs),
			pq.Array(&match.ProblemIDs),
			&match.StartedAt,
			&match.EndsAt,
			&match.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}
