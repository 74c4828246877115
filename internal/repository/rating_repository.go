package repository

import (
	"database/sql"
	"fmt"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/database"
)

type RatingRepository struct {
	db *database.DB
}

func NewRatingRepository(db *database.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// GetOrCreate 레이팅 레코드 조회 (없으면 기본 레이팅으로 생성)
func (r *RatingRepository) GetOrCreate(subjectID string, mode models.Mode) (*models.RatingRecord, error) {
	query := `
		INSERT INTO rating_records (subject_id, mode, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id, mode) DO UPDATE SET subject_id = EXCLUDED.subject_id
		RETURNING subject_id, mode, rating, matches_played, wins, losses, streak, version, updated_at
	`

	rec := &models.RatingRecord{}
	err := r.db.QueryRow(query, subjectID, mode, models.DefaultRating).Scan(
		&rec.SubjectID,
		&rec.Mode,
		&rec.Rating,
		&rec.MatchesPlayed,
		&rec.Wins,
		&rec.Losses,
		&rec.Streak,
		&rec.Version,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get rating record: %w", err)
	}

	return rec, nil
}

// UpdateWithVersion applies the record via compare-and-swap on the version
// column. Returns ErrVersionConflict when another writer got there first;
// the caller is expected to re-read, recompute and retry.
func (r *RatingRepository) UpdateWithVersion(rec *models.RatingRecord) error {
	query := `
		UPDATE rating_records
		SET rating = $1,
		    matches_played = $2,
		    wins = $3,
		    losses = $4,
		    streak = $5,
		    version = version + 1,
		    updated_at = NOW()
		WHERE subject_id = $6 AND mode = $7 AND version = $8
	`

	result, err := r.db.Exec(query,
		rec.Rating,
		rec.MatchesPlayed,
		rec.Wins,
		rec.Losses,
		rec.Streak,
		rec.SubjectID,
		rec.Mode,
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update rating record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rating update: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	rec.Version++
	return nil
}

// Leaderboard 레이팅 상위 조회
func (r *RatingRepository) Leaderboard(mode models.Mode, limit int) ([]*models.LeaderboardRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT rr.subject_id, u.username, rr.rating, rr.matches_played, rr.wins, rr.losses
		FROM rating_records rr
		JOIN users u ON u.id = rr.subject_id
		WHERE rr.mode = $1
		ORDER BY rr.rating DESC, rr.subject_id ASC
		LIMIT $2
	`

	rows, err := r.db.Query(query, mode, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var board []*models.LeaderboardRow
	rank := 0
	for rows.Next() {
		rank++
		row := &models.LeaderboardRow{Rank: rank}
		if err := rows.Scan(
			&row.SubjectID,
			&row.Username,
			&row.Rating,
			&row.MatchesPlayed,
			&row.Wins,
			&row.Losses,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		row.Tier = models.TierForRating(row.Rating)
		board = append(board, row)
	}

	return board, rows.Err()
}

// Find 레이팅 레코드 조회 (생성하지 않음)
func (r *RatingRepository) Find(subjectID string, mode models.Mode) (*models.RatingRecord, error) {
	query := `
		SELECT subject_id, mode, rating, matches_played, wins, losses, streak, version, updated_at
		FROM rating_records
		WHERE subject_id = $1 AND mode = $2
	`

	rec := &models.RatingRecord{}
	err := r.db.QueryRow(query, subjectID, mode).Scan(
		&rec.SubjectID,
		&rec.Mode,
		&rec.Rating,
		&rec.MatchesPlayed,
		&rec.Wins,
		&rec.Losses,
		&rec.Streak,
		&rec.Version,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rating record: %w", err)
	}

	return rec, nil
}
