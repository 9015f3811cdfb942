package game

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/chess-arena/pkg/protocol"
)

// Repository persists final game results to Postgres. Attachment is
// optional; the protocol works without it.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts the final row for a finished game.
func (r *Repository) SaveResult(ctx context.Context, snap *protocol.GameSnapshot) error {
	if r == nil || r.db == nil || snap == nil || snap.Active {
		return nil
	}

	movesRaw, _ := json.Marshal(snap.Moves)
	duration := snap.UpdatedAt.Sub(snap.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO arena_games (
	    game_id, white_id, white_name, black_id, black_name,
	    winner, reason, moves, started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    winner=EXCLUDED.winner,
	    reason=EXCLUDED.reason,
	    moves=EXCLUDED.moves,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		snap.ID,
		snap.White.ID, snap.White.Username,
		snap.Black.ID, snap.Black.Username,
		snap.Winner, snap.Reason, string(movesRaw),
		snap.CreatedAt, snap.UpdatedAt, duration,
	)
	return err
}
