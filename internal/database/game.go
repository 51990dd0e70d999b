// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/durak/internal/game"
	"github.com/jason-s-yu/durak/internal/models"
)

// playerRow is one durak_game_players row.
type playerRow struct {
	PlayerID uuid.UUID
	Name     string
	Seat     int
	Place    *int // nil for the durak and for players still holding cards in a draw
	IsDurak  bool
}

// resultRows flattens a result into one row per seated player.
func resultRows(res game.GameResult) []playerRow {
	places := make(map[uuid.UUID]int, len(res.Winners))
	for _, w := range res.Winners {
		places[w.ID] = w.Position
	}
	rows := make([]playerRow, 0, len(res.Players))
	for _, p := range res.Players {
		row := playerRow{
			PlayerID: p.ID,
			Name:     p.Name,
			Seat:     p.Position,
			IsDurak:  !res.IsDraw && p.ID == res.DurakID,
		}
		if place, ok := places[p.ID]; ok {
			row.Place = &place
		}
		rows = append(rows, row)
	}
	return rows
}

// initialState is the JSON stored with a round so it can be replayed from its action log.
func initialState(start game.RoundStart) map[string]interface{} {
	hands := make(map[string][]models.Card, len(start.Hands))
	for id, h := range start.Hands {
		hands[id.String()] = h
	}
	return map[string]interface{}{
		"trumpCard": start.TrumpCard,
		"deck":      start.Deck,
		"hands":     hands,
	}
}

// RecordRoundStart stores the deal of a round and marks it in progress.
func RecordRoundStart(ctx context.Context, db TxBeginner, start game.RoundStart) error {
	js, err := json.Marshal(initialState(start))
	if err != nil {
		return fmt.Errorf("failed to marshal initial game state: %w", err)
	}
	q := `
		INSERT INTO durak_games (id, room_code, mode, round_number, status, initial_state, start_time)
		VALUES ($1, $2, $3, $4, 'in_progress', $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET initial_state = EXCLUDED.initial_state, status = 'in_progress'
	`
	err = pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, start.GameID, start.RoomCode, string(start.Mode), start.RoundNumber, js, start.StartedAt)
		return e
	})
	if err != nil {
		return fmt.Errorf("record round start: %w", err)
	}
	return nil
}

// RecordGameResult persists the outcome of a round: the game row and one row per player.
func RecordGameResult(ctx context.Context, db TxBeginner, res game.GameResult) error {
	var durak *uuid.UUID
	if !res.IsDraw && res.DurakID != uuid.Nil {
		id := res.DurakID
		durak = &id
	}
	err := pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO durak_games (id, room_code, mode, round_number, status, durak_id, is_draw, start_time, end_time)
			VALUES ($1, $2, $3, $4, 'completed', $5, $6, $7, $8)
			ON CONFLICT (id)
			DO UPDATE SET status = 'completed', durak_id = $5, is_draw = $6, end_time = $8
		`
		if _, e := tx.Exec(ctx, upsertGame,
			res.GameID, res.RoomCode, string(res.Mode), res.RoundNumber, durak, res.IsDraw, res.StartedAt, res.EndedAt,
		); e != nil {
			return e
		}

		for _, row := range resultRows(res) {
			q := `
				INSERT INTO durak_game_players (game_id, player_id, name, seat, place, is_durak)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (game_id, player_id)
				DO UPDATE SET place = $5, is_durak = $6
			`
			if _, e2 := tx.Exec(ctx, q, res.GameID, row.PlayerID, row.Name, row.Seat, row.Place, row.IsDurak); e2 != nil {
				return e2
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert game or results: %w", err)
	}
	return nil
}
