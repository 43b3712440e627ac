// Package matchq is the durable handoff joining fills on the primary
// venue to independently-detected trades on the secondary venue. Entries
// carry matching metadata only and are consumed exactly once, FIFO per
// (asset, direction).
package matchq

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"signal-engine/pkg/db"
	"signal-engine/pkg/logger"
)

// Queue is the sqlite-backed matching queue.
type Queue struct {
	db  *db.Database
	log *logrus.Entry
}

// New builds a Queue over the shared database.
func New(database *db.Database) *Queue {
	return &Queue{db: database, log: logger.Component("match_queue")}
}

// Enqueue appends an entry for a newly opened position.
func (q *Queue) Enqueue(ctx context.Context, e db.QueueEntry) error {
	isOpp := 0
	if e.IsOpposite {
		isOpp = 1
	}
	_, err := q.db.DB.ExecContext(ctx, `
		INSERT INTO match_queue (asset, direction, strategy_tag, is_opposite)
		VALUES (?, ?, ?, ?)
	`, e.Asset, e.Direction, e.StrategyTag, isOpp)
	if err != nil {
		return fmt.Errorf("enqueue match entry: %w", err)
	}
	q.log.Debugf("enqueued %s %s tag=%s", e.Asset, e.Direction, e.StrategyTag)
	return nil
}

// Dequeue atomically claims the oldest unmatched entry for (asset,
// direction): select and delete run in one transaction so two concurrent
// callers can never take the same row. Returns (nil, nil) when no entry
// matches; an empty match is legitimate.
func (q *Queue) Dequeue(ctx context.Context, asset, direction string) (*db.QueueEntry, error) {
	tx, err := q.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue tx: %w", err)
	}
	defer tx.Rollback()

	var e db.QueueEntry
	var isOpp int
	err = tx.QueryRowContext(ctx, `
		SELECT id, asset, direction, strategy_tag, is_opposite, created_at
		FROM match_queue
		WHERE asset = ? AND direction = ?
		ORDER BY created_at, id
		LIMIT 1
	`, asset, direction).Scan(&e.ID, &e.Asset, &e.Direction, &e.StrategyTag, &isOpp, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select match entry: %w", err)
	}
	e.IsOpposite = isOpp != 0

	if _, err := tx.ExecContext(ctx, `DELETE FROM match_queue WHERE id = ?`, e.ID); err != nil {
		return nil, fmt.Errorf("delete match entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}

	q.log.Debugf("dequeued #%d %s %s", e.ID, e.Asset, e.Direction)
	return &e, nil
}

// Peek returns the oldest entry for (asset, direction) without claiming
// it. Ops visibility only; consumption goes through Dequeue.
func (q *Queue) Peek(ctx context.Context, asset, direction string) (*db.QueueEntry, error) {
	var e db.QueueEntry
	var isOpp int
	err := q.db.DB.QueryRowContext(ctx, `
		SELECT id, asset, direction, strategy_tag, is_opposite, created_at
		FROM match_queue
		WHERE asset = ? AND direction = ?
		ORDER BY created_at, id
		LIMIT 1
	`, asset, direction).Scan(&e.ID, &e.Asset, &e.Direction, &e.StrategyTag, &isOpp, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek match entry: %w", err)
	}
	e.IsOpposite = isOpp != 0
	return &e, nil
}

// Depth returns the number of queued entries for (asset, direction).
func (q *Queue) Depth(ctx context.Context, asset, direction string) (int, error) {
	var n int
	err := q.db.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM match_queue WHERE asset = ? AND direction = ?
	`, asset, direction).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count match entries: %w", err)
	}
	return n, nil
}
