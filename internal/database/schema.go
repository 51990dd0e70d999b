package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const schema = `
CREATE TABLE IF NOT EXISTS durak_games (
	id            UUID PRIMARY KEY,
	room_code     TEXT NOT NULL,
	mode          TEXT NOT NULL,
	round_number  INT NOT NULL DEFAULT 1,
	status        TEXT NOT NULL DEFAULT 'in_progress',
	initial_state JSONB,
	durak_id      UUID,
	is_draw       BOOLEAN NOT NULL DEFAULT FALSE,
	start_time    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	end_time      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS durak_game_players (
	game_id   UUID NOT NULL REFERENCES durak_games(id) ON DELETE CASCADE,
	player_id UUID NOT NULL,
	name      TEXT NOT NULL,
	seat      INT NOT NULL,
	place     INT,
	is_durak  BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (game_id, player_id)
);

CREATE TABLE IF NOT EXISTS durak_game_actions (
	game_id        UUID NOT NULL,
	action_index   INT NOT NULL,
	actor_id       UUID,
	action_type    TEXT NOT NULL,
	action_payload JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (game_id, action_index)
);
`

// EnsureSchema creates the tables used by the server and the historian if they are missing.
func EnsureSchema(ctx context.Context, db TxBeginner) error {
	err := pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, schema)
		return e
	})
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
