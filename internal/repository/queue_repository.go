package repository

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/codeclash/codeclash-backend/internal/models"
	"github.com/codeclash/codeclash-backend/pkg/database"
)

// QueueRepository is the durable record keeper for queue entries. The
// in-memory matchmaking queue stays authoritative; these rows exist for
// audit and for rebuilding the queue after a restart.
type QueueRepository struct {
	db *database.DB
}

func NewQueueRepository(db *database.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Insert 큐 엔트리 기록
func (r *QueueRepository) Insert(entry *models.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (id, subject_ids, rating, mode, enqueued_at, status)
		VALUES ($1, $2, $3, $4, $5, 'waiting')
	`

	_, err := r.db.Exec(query,
		entry.ID,
		pq.Array(entry.SubjectIDs),
		entry.Rating,
		entry.Mode,
		entry.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}

	return nil
}

// MarkMatched 매칭 완료로 표시
func (r *QueueRepository) MarkMatched(entryIDs ...string) error {
	return r.markStatus("matched", entryIDs)
}

// MarkExpired 타임아웃으로 표시
func (r *QueueRepository) MarkExpired(entryIDs ...string) error {
	return r.markStatus("expired", entryIDs)
}

// MarkLeft 명시적 이탈로 표시
func (r *QueueRepository) MarkLeft(entryIDs ...string) error {
	return r.markStatus("left", entryIDs)
}

func (r *QueueRepository) markStatus(status string, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}

	query := `
		UPDATE queue_entries
		SET status = $1, resolved_at = NOW()
		WHERE id = ANY($2)
	`

	if _, err := r.db.Exec(query, status, pq.Array(entryIDs)); err != nil {
		return fmt.Errorf("failed to mark queue entries %s: %w", status, err)
	}

	return nil
}

// FindWaiting returns entries still recorded as waiting, used to rebuild
// the in-memory queue on startup.
func (r *QueueRepository) FindWaiting() ([]*models.QueueEntry, error) {
	query := `
		SELECT id, subject_ids, rating, mode, enqueued_at
		FROM queue_entries
		WHERE status = 'waiting'
		ORDER BY enqueued_at ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query waiting entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		entry := &models.QueueEntry{}
		if err := rows.Scan(
			&entry.ID,
			pq.Array(&entry.SubjectIDs),
			&entry.Rating,
			&entry.Mode,
			&entry.EnqueuedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
