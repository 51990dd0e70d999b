package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/durak/internal/cache"
)

// InsertActions writes a batch of action records in a single transaction. Records already stored
// under the same (game, index) are skipped, so a batch can be retried.
func InsertActions(ctx context.Context, db TxBeginner, records []cache.GameActionRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert action %s/%d: %w", rec.GameID, rec.ActionIndex, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx insert actions: %w", err)
	}
	return nil
}

func insertActionTx(ctx context.Context, tx pgx.Tx, rec cache.GameActionRecord) error {
	jsonPayload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	var actor *uuid.UUID
	if rec.ActorUserID != uuid.Nil {
		id := rec.ActorUserID
		actor = &id
	}
	q := `
		INSERT INTO durak_game_actions (
			game_id, action_index, actor_id, action_type, action_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, action_index) DO NOTHING
	`
	_, err = tx.Exec(ctx, q,
		rec.GameID, rec.ActionIndex, actor, rec.ActionType, jsonPayload, time.UnixMilli(rec.Timestamp).UTC(),
	)
	return err
}

// MarkAbandoned closes a game that stopped producing actions without ever reporting a result.
// Returns whether a row was updated.
func MarkAbandoned(ctx context.Context, db TxBeginner, gameID uuid.UUID) (bool, error) {
	var updated bool
	err := pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE durak_games
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		tag, e := tx.Exec(ctx, q, gameID)
		updated = tag.RowsAffected() > 0
		return e
	})
	if err != nil {
		return false, fmt.Errorf("mark game %s abandoned: %w", gameID, err)
	}
	return updated, nil
}
