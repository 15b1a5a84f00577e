// Package store keeps the local SQLite journal of finished games.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/learnsignals/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for game data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			student INTEGER NOT NULL,
			remote_session INTEGER NOT NULL,
			correct INTEGER NOT NULL,
			incorrect INTEGER NOT NULL,
			mean_response REAL NOT NULL,
			zones_completed INTEGER NOT NULL,
			max_zone INTEGER NOT NULL,
			final_tier INTEGER NOT NULL,
			completed INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS game_sign_stats (
			game_id TEXT NOT NULL,
			sign TEXT NOT NULL,
			correct INTEGER NOT NULL,
			incorrect INTEGER NOT NULL,
			timeouts INTEGER NOT NULL,
			response_sum REAL NOT NULL,
			response_seen INTEGER NOT NULL,
			PRIMARY KEY (game_id, sign)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_games_ended_at ON games(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_game_sign_stats_sign ON game_sign_stats(sign);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertGame stores a finished game and its per-sign stats. An empty id is
// replaced by a new UUID, which is returned.
func (s *Store) InsertGame(ctx context.Context, game model.GameStats, signs []model.SignStats) (id string, err error) {
	id = game.ID
	if id == "" {
		id = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO games (id, started_at, ended_at, student, remote_session, correct, incorrect, mean_response, zones_completed, max_zone, final_tier, completed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		game.StartedAt.Format(time.RFC3339Nano),
		game.EndedAt.Format(time.RFC3339Nano),
		game.Student,
		game.RemoteSession,
		game.Correct,
		game.Incorrect,
		game.MeanResponse,
		game.ZonesCompleted,
		game.MaxZone,
		game.FinalTier.Wire(),
		boolInt(game.Completed),
	)
	if err != nil {
		return "", err
	}

	if len(signs) > 0 {
		var stmt *sql.Stmt
		stmt, err = tx.PrepareContext(ctx,
			`INSERT INTO game_sign_stats (game_id, sign, correct, incorrect, timeouts, response_sum, response_seen)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, ss := range signs {
			if _, err = stmt.ExecContext(ctx, id, ss.Sign, ss.Correct, ss.Incorrect, ss.Timeouts, ss.ResponseSum, ss.ResponseSeen); err != nil {
				return "", err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetWeakSigns aggregates sign stats over the most recent games of a
// student. student <= 0 matches every student.
func (s *Store) GetWeakSigns(ctx context.Context, window, student int) ([]model.SignAggregate, error) {
	if window <= 0 {
		return nil, nil
	}
	query := `WITH recent_games AS (
		SELECT id FROM games
		WHERE (? <= 0 OR student = ?)
		ORDER BY ended_at DESC
		LIMIT ?
	)
	SELECT gs.sign, SUM(gs.correct), SUM(gs.incorrect), SUM(gs.timeouts),
		SUM(gs.response_sum), SUM(gs.response_seen)
	FROM game_sign_stats gs
	JOIN recent_games r ON r.id = gs.game_id
	GROUP BY gs.sign`

	rows, err := s.db.QueryContext(ctx, query, student, student, window)
	if err != nil {
		return nil, err
	}
	return scanAggregates(rows)
}

// ListGames returns game aggregates filtered by the stats config, oldest
// first. Last keeps only the newest games.
func (s *Store) ListGames(ctx context.Context, cfg model.StatsConfig) ([]model.GameAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Student > 0 {
		clauses = append(clauses, "student = ?")
		args = append(args, cfg.Student)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT id, ended_at, correct, incorrect, mean_response, zones_completed, final_tier, completed
		FROM games
		WHERE %s
		ORDER BY ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var games []model.GameAggregate
	for rows.Next() {
		var agg model.GameAggregate
		var endedAt string
		var tier, completed int
		if err := rows.Scan(&agg.GameID, &endedAt, &agg.Correct, &agg.Incorrect, &agg.MeanResponse,
			&agg.ZonesCompleted, &tier, &completed); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		agg.EndedAt = parsed
		agg.FinalTier = model.TierFromWire(tier)
		agg.Completed = completed != 0
		games = append(games, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(games) > cfg.Last {
		games = games[len(games)-cfg.Last:]
	}
	return games, nil
}

// ListSignAggregatesForGames aggregates per-sign stats across games.
func (s *Store) ListSignAggregatesForGames(ctx context.Context, gameIDs []string) ([]model.SignAggregate, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(gameIDs)
	query := fmt.Sprintf(`SELECT sign, SUM(correct), SUM(incorrect), SUM(timeouts),
		SUM(response_sum), SUM(response_seen)
		FROM game_sign_stats
		WHERE game_id IN (%s)
		GROUP BY sign
		ORDER BY sign`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAggregates(rows)
}

// ListSignStatsForGames returns per-game stats for selected signs.
func (s *Store) ListSignStatsForGames(ctx context.Context, gameIDs, signs []string) (map[string]map[string]model.SignAggregate, error) {
	if len(gameIDs) == 0 || len(signs) == 0 {
		return map[string]map[string]model.SignAggregate{}, nil
	}
	idPlaceholders, args := inClause(gameIDs)
	signPlaceholders, signArgs := inClause(signs)
	args = append(args, signArgs...)

	query := fmt.Sprintf(`SELECT game_id, sign, correct, incorrect, timeouts, response_sum, response_seen
		FROM game_sign_stats
		WHERE game_id IN (%s) AND sign IN (%s)`, idPlaceholders, signPlaceholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	result := map[string]map[string]model.SignAggregate{}
	for rows.Next() {
		var gameID string
		var agg model.SignAggregate
		if err := rows.Scan(&gameID, &agg.Sign, &agg.Correct, &agg.Incorrect, &agg.Timeouts,
			&agg.ResponseSum, &agg.ResponseSeen); err != nil {
			return nil, err
		}
		if _, ok := result[gameID]; !ok {
			result[gameID] = map[string]model.SignAggregate{}
		}
		result[gameID][agg.Sign] = agg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func inClause(values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}

func scanAggregates(rows *sql.Rows) ([]model.SignAggregate, error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	var result []model.SignAggregate
	for rows.Next() {
		var agg model.SignAggregate
		if err := rows.Scan(&agg.Sign, &agg.Correct, &agg.Incorrect, &agg.Timeouts,
			&agg.ResponseSum, &agg.ResponseSeen); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
