package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// CreatePosition inserts a newly opened position.
func (d *Database) CreatePosition(ctx context.Context, p PositionRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (position_id, signal_id, is_opposite, symbol, direction,
		                       entry_price, stop_loss, take_profit, status, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, p.PositionID, p.SignalID, boolToInt(p.IsOpposite), p.Symbol, p.Direction,
		p.EntryPrice, p.StopLoss, p.TakeProfit, PositionOpen)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetPosition returns one position by venue position id.
func (d *Database) GetPosition(ctx context.Context, positionID string) (*PositionRecord, error) {
	var p PositionRecord
	var isOpp int
	var closedAt sql.NullTime
	err := d.DB.QueryRowContext(ctx, `
		SELECT position_id, signal_id, is_opposite, symbol, direction,
		       entry_price, stop_loss, take_profit, status,
		       COALESCE(outcome, ''), COALESCE(close_reason, ''), COALESCE(risk_reward, ''),
		       COALESCE(exit_price, 0), opened_at, closed_at, updated_at
		FROM positions WHERE position_id = ?
	`, positionID).Scan(&p.PositionID, &p.SignalID, &isOpp, &p.Symbol, &p.Direction,
		&p.EntryPrice, &p.StopLoss, &p.TakeProfit, &p.Status,
		&p.Outcome, &p.CloseReason, &p.RiskReward,
		&p.ExitPrice, &p.OpenedAt, &closedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query position: %w", err)
	}
	p.IsOpposite = isOpp != 0
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	return &p, nil
}

// GetOpenPositions returns all positions still open on the venue.
func (d *Database) GetOpenPositions(ctx context.Context) ([]PositionRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT position_id, signal_id, is_opposite, symbol, direction,
		       entry_price, stop_loss, take_profit, status,
		       COALESCE(outcome, ''), COALESCE(close_reason, ''), COALESCE(risk_reward, ''),
		       COALESCE(exit_price, 0), opened_at, closed_at, updated_at
		FROM positions
		WHERE status = ?
		ORDER BY opened_at DESC
	`, PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var p PositionRecord
		var isOpp int
		var closedAt sql.NullTime
		if err := rows.Scan(&p.PositionID, &p.SignalID, &isOpp, &p.Symbol, &p.Direction,
			&p.EntryPrice, &p.StopLoss, &p.TakeProfit, &p.Status,
			&p.Outcome, &p.CloseReason, &p.RiskReward,
			&p.ExitPrice, &p.OpenedAt, &closedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.IsOpposite = isOpp != 0
		if closedAt.Valid {
			t := closedAt.Time
			p.ClosedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePositionStops persists amended SL/TP on a position record.
func (d *Database) UpdatePositionStops(ctx context.Context, positionID string, sl, tp float64) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE positions SET stop_loss = ?, take_profit = ?, updated_at = CURRENT_TIMESTAMP
		WHERE position_id = ?
	`, sl, tp, positionID)
	if err != nil {
		return fmt.Errorf("update position stops: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClosePosition marks a position closed with its terminal outcome.
// Closed positions stay in the table; nothing deletes them.
func (d *Database) ClosePosition(ctx context.Context, positionID string, exitPrice float64, outcome, closeReason, riskReward string) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE positions
		SET status = ?, exit_price = ?, outcome = ?, close_reason = ?, risk_reward = ?,
		    closed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE position_id = ? AND status = ?
	`, PositionClosed, exitPrice, outcome, closeReason, riskReward, positionID, PositionOpen)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// JournalSignal appends a terminal outcome for one signal leg.
func (d *Database) JournalSignal(ctx context.Context, signalID string, isOpposite bool, state, detail string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signal_journal (signal_id, is_opposite, state, detail)
		VALUES (?, ?, ?, ?)
	`, signalID, boolToInt(isOpposite), state, detail)
	if err != nil {
		return fmt.Errorf("journal signal: %w", err)
	}
	return nil
}

// GetSignalJournal returns all recorded outcomes for a signal, oldest first.
func (d *Database) GetSignalJournal(ctx context.Context, signalID string) ([]JournalEntry, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, signal_id, is_opposite, state, COALESCE(detail, ''), recorded_at
		FROM signal_journal WHERE signal_id = ? ORDER BY id
	`, signalID)
	if err != nil {
		return nil, fmt.Errorf("query signal journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var isOpp int
		if err := rows.Scan(&e.ID, &e.SignalID, &isOpp, &e.State, &e.Detail, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.IsOpposite = isOpp != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
