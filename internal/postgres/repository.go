package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prediction-game/internal/config"
	"github.com/prediction-game/internal/domain"
	"github.com/prediction-game/internal/game"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			uid UUID PRIMARY KEY,
			name VARCHAR(50) NOT NULL UNIQUE,
			is_ai BOOLEAN NOT NULL DEFAULT FALSE,
			points BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS game_rounds (
			id BIGSERIAL PRIMARY KEY,
			start_at TIMESTAMPTZ NOT NULL UNIQUE,
			closed_at TIMESTAMPTZ NOT NULL,
			target_at TIMESTAMPTZ NOT NULL,
			base_price DOUBLE PRECISION NOT NULL,
			result_price DOUBLE PRECISION,
			winning_choice INT,
			chart_before JSONB NOT NULL DEFAULT '[]',
			chart_after JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CHECK (closed_at >= start_at),
			CHECK (target_at >= closed_at),
			CHECK ((result_price IS NULL) = (winning_choice IS NULL))
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id BIGSERIAL PRIMARY KEY,
			game_round_id BIGINT NOT NULL REFERENCES game_rounds(id) ON DELETE CASCADE,
			player_uid UUID NOT NULL REFERENCES players(uid),
			choice INT NOT NULL,
			won BOOLEAN,
			earned_points BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(game_round_id, player_uid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_rounds_start ON game_rounds(start_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_game_rounds_unsettled ON game_rounds(target_at) WHERE result_price IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_player ON predictions(player_uid, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreatePlayer registers a new player with the starting balance.
func (r *Repository) CreatePlayer(ctx context.Context, uid, name string, isAI bool, startingPoints int64) (*domain.Player, error) {
	query := `
		INSERT INTO players (uid, name, is_ai, points, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING uid, name, is_ai, points, status, created_at, updated_at
	`
	var p domain.Player
	err := r.pool.QueryRow(ctx, query, uid, name, isAI, startingPoints, domain.PlayerStatusActive, time.Now()).Scan(
		&p.UID, &p.Name, &p.IsAI, &p.Points, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrNameTaken
		}
		return nil, fmt.Errorf("creating player: %w", err)
	}
	return &p, nil
}

// GetPlayer fetches a player by uid. Soft-deleted players behave as absent.
func (r *Repository) GetPlayer(ctx context.Context, uid string) (*domain.Player, error) {
	query := `
		SELECT uid, name, is_ai, points, status, created_at, updated_at
		FROM players
		WHERE uid = $1
	`
	var p domain.Player
	err := r.pool.QueryRow(ctx, query, uid).Scan(
		&p.UID, &p.Name, &p.IsAI, &p.Points, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	if p.Deleted() {
		return nil, domain.ErrPlayerNotFound
	}
	return &p, nil
}

// DeletePlayer soft-deletes a player: the name is released by rewriting it to
// a tombstone derived from the uid and the row is kept for history.
func (r *Repository) DeletePlayer(ctx context.Context, uid string) (*domain.Player, error) {
	query := `
		UPDATE players
		SET name = 'del_' || replace(uid::text, '-', ''),
		    status = $2,
		    updated_at = $3
		WHERE uid = $1 AND status <> $2
		RETURNING uid, name, is_ai, points, status, created_at, updated_at
	`
	var p domain.Player
	err := r.pool.QueryRow(ctx, query, uid, domain.PlayerStatusDeleted, time.Now()).Scan(
		&p.UID, &p.Name, &p.IsAI, &p.Points, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("deleting player: %w", err)
	}
	return &p, nil
}

const roundColumns = `id, start_at, closed_at, target_at, base_price, result_price, winning_choice`

func scanRound(row pgx.Row) (*domain.Round, error) {
	var round domain.Round
	var winning *int
	err := row.Scan(
		&round.ID, &round.StartAt, &round.ClosedAt, &round.TargetAt,
		&round.BasePrice, &round.ResultPrice, &winning,
	)
	if err != nil {
		return nil, err
	}
	if winning != nil {
		c := domain.Choice(*winning)
		round.WinningChoice = &c
	}
	return &round, nil
}

// CreateRound inserts a new round. A round already covering the same
// start_at is a state conflict.
func (r *Repository) CreateRound(ctx context.Context, round *domain.Round, chart domain.ChartData) (*domain.Round, error) {
	before, err := json.Marshal(chart.Before)
	if err != nil {
		return nil, fmt.Errorf("marshaling chart data: %w", err)
	}

	query := `
		INSERT INTO game_rounds (start_at, closed_at, target_at, base_price, chart_before, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + roundColumns
	created, err := scanRound(r.pool.QueryRow(ctx, query,
		round.StartAt, round.ClosedAt, round.TargetAt, round.BasePrice, before, time.Now(),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrRoundExists
		}
		return nil, fmt.Errorf("creating round: %w", err)
	}
	created.Predictions = []domain.Prediction{}
	return created, nil
}

// GetRound fetches a round and its predictions by id.
func (r *Repository) GetRound(ctx context.Context, id int64) (*domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM game_rounds WHERE id = $1`
	round, err := scanRound(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, fmt.Errorf("getting round: %w", err)
	}
	if err := r.loadPredictions(ctx, round); err != nil {
		return nil, err
	}
	return round, nil
}

// ActiveRound fetches the round currently accepting predictions, or
// ErrRoundNotFound when none is open.
func (r *Repository) ActiveRound(ctx context.Context, now time.Time) (*domain.Round, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM game_rounds
		WHERE start_at <= $1 AND closed_at > $1
		ORDER BY start_at DESC
		LIMIT 1
	`
	round, err := scanRound(r.pool.QueryRow(ctx, query, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, fmt.Errorf("getting active round: %w", err)
	}
	if err := r.loadPredictions(ctx, round); err != nil {
		return nil, err
	}
	return round, nil
}

// ListRounds returns every round in id order, predictions included.
func (r *Repository) ListRounds(ctx context.Context) ([]*domain.Round, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roundColumns+` FROM game_rounds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*domain.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning round: %w", err)
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing rounds: %w", err)
	}

	for _, round := range rounds {
		if err := r.loadPredictions(ctx, round); err != nil {
			return nil, err
		}
	}
	return rounds, nil
}

// DueRounds returns rounds past their target time that still lack a result.
func (r *Repository) DueRounds(ctx context.Context, now time.Time) ([]*domain.Round, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM game_rounds
		WHERE target_at <= $1 AND result_price IS NULL
		ORDER BY target_at
	`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("listing due rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*domain.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning due round: %w", err)
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing due rounds: %w", err)
	}

	for _, round := range rounds {
		if err := r.loadPredictions(ctx, round); err != nil {
			return nil, err
		}
	}
	return rounds, nil
}

func (r *Repository) loadPredictions(ctx context.Context, round *domain.Round) error {
	query := `
		SELECT p.id, p.game_round_id, p.choice, p.won, p.earned_points,
		       u.name, u.is_ai, u.points
		FROM predictions p
		JOIN players u ON u.uid = p.player_uid
		WHERE p.game_round_id = $1
		ORDER BY p.id
	`
	rows, err := r.pool.Query(ctx, query, round.ID)
	if err != nil {
		return fmt.Errorf("loading predictions: %w", err)
	}
	defer rows.Close()

	round.Predictions = []domain.Prediction{}
	for rows.Next() {
		var pred domain.Prediction
		var choice int
		err := rows.Scan(
			&pred.ID, &pred.RoundID, &choice, &pred.Won, &pred.EarnedPoints,
			&pred.Player.Name, &pred.Player.IsAI, &pred.Player.Points,
		)
		if err != nil {
			return fmt.Errorf("scanning prediction: %w", err)
		}
		pred.Choice = domain.Choice(choice)
		round.Predictions = append(round.Predictions, pred)
	}
	return rows.Err()
}

// RoundChart fetches the raw before/after samples for a round.
func (r *Repository) RoundChart(ctx context.Context, id int64) (domain.ChartData, error) {
	var before, after []byte
	err := r.pool.QueryRow(ctx,
		`SELECT chart_before, chart_after FROM game_rounds WHERE id = $1`, id,
	).Scan(&before, &after)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ChartData{}, domain.ErrRoundNotFound
		}
		return domain.ChartData{}, fmt.Errorf("getting round chart: %w", err)
	}

	var chart domain.ChartData
	if err := json.Unmarshal(before, &chart.Before); err != nil {
		return domain.ChartData{}, fmt.Errorf("decoding chart data: %w", err)
	}
	if err := json.Unmarshal(after, &chart.After); err != nil {
		return domain.ChartData{}, fmt.Errorf("decoding chart data: %w", err)
	}
	return chart, nil
}

// WritePrediction records or updates a player's choice inside one
// transaction. The entry cost is charged only when the prediction is first
// created; updating an existing choice is free. charged reports whether
// points were deducted.
func (r *Repository) WritePrediction(ctx context.Context, roundID int64, playerUID string, choice domain.Choice, entryCost int64) (pred *domain.Prediction, charged bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var points int64
	var name string
	var isAI bool
	err = tx.QueryRow(ctx,
		`SELECT points, name, is_ai FROM players WHERE uid = $1 AND status <> $2 FOR UPDATE`,
		playerUID, domain.PlayerStatusDeleted,
	).Scan(&points, &name, &isAI)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, domain.ErrPlayerNotFound
		}
		return nil, false, fmt.Errorf("locking player: %w", err)
	}

	var predID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM predictions WHERE game_round_id = $1 AND player_uid = $2`,
		roundID, playerUID,
	).Scan(&predID)

	switch {
	case err == nil:
		// Free update of an existing prediction.
		_, err = tx.Exec(ctx,
			`UPDATE predictions SET choice = $2, updated_at = $3 WHERE id = $1`,
			predID, int(choice), time.Now(),
		)
		if err != nil {
			return nil, false, fmt.Errorf("updating prediction: %w", err)
		}

	case errors.Is(err, pgx.ErrNoRows):
		if points < entryCost {
			return nil, false, domain.ErrInsufficientPoints
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO predictions (game_round_id, player_uid, choice, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4) RETURNING id`,
			roundID, playerUID, int(choice), time.Now(),
		).Scan(&predID)
		if err != nil {
			return nil, false, fmt.Errorf("inserting prediction: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE players SET points = points - $2, updated_at = $3 WHERE uid = $1`,
			playerUID, entryCost, time.Now(),
		)
		if err != nil {
			return nil, false, fmt.Errorf("charging entry cost: %w", err)
		}
		points -= entryCost
		charged = true

	default:
		return nil, false, fmt.Errorf("checking existing prediction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing prediction: %w", err)
	}

	return &domain.Prediction{
		ID:      predID,
		RoundID: roundID,
		Player:  domain.PlayerInfo{Name: name, IsAI: isAI, Points: points},
		Choice:  choice,
	}, charged, nil
}

// ApplySettlement writes a round's outcome atomically: result price, winning
// choice, the after-series chart samples, per-prediction awards and the
// winners' point balances all land in one transaction.
func (r *Repository) ApplySettlement(ctx context.Context, roundID int64, s game.Settlement, after domain.ChartSeries) error {
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("marshaling chart data: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	tag, err := tx.Exec(ctx,
		`UPDATE game_rounds
		 SET result_price = $2, winning_choice = $3, chart_after = $4, updated_at = $5
		 WHERE id = $1 AND result_price IS NULL`,
		roundID, s.ResultPrice, int(s.WinningChoice), afterJSON, now,
	)
	if err != nil {
		return fmt.Errorf("settling round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already settled; settlement transitions exactly once.
		return nil
	}

	for _, award := range s.Awards {
		_, err = tx.Exec(ctx,
			`UPDATE predictions SET won = $2, earned_points = $3, updated_at = $4 WHERE id = $1`,
			award.PredictionID, award.Won, award.Earned, now,
		)
		if err != nil {
			return fmt.Errorf("recording award: %w", err)
		}
		if award.Won && award.Earned > 0 {
			_, err = tx.Exec(ctx,
				`UPDATE players SET points = points + $2, updated_at = $3
				 WHERE uid = (SELECT player_uid FROM predictions WHERE id = $1)`,
				award.PredictionID, award.Earned, now,
			)
			if err != nil {
				return fmt.Errorf("crediting winner: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing settlement: %w", err)
	}
	return nil
}

// LeaderboardStats aggregates per-player points, rounds and wins for every
// active player.
func (r *Repository) LeaderboardStats(ctx context.Context) ([]domain.PlayerStats, error) {
	query := `
		SELECT u.name, u.points,
		       COUNT(p.id) AS total_rounds,
		       COALESCE(SUM(CASE WHEN p.won THEN 1 ELSE 0 END), 0) AS wins
		FROM players u
		LEFT JOIN predictions p ON p.player_uid = u.uid
		WHERE u.status <> $1
		GROUP BY u.uid
		ORDER BY u.points DESC
	`
	rows, err := r.pool.Query(ctx, query, domain.PlayerStatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("aggregating leaderboard stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.PlayerStats
	for rows.Next() {
		var s domain.PlayerStats
		if err := rows.Scan(&s.Handle, &s.Points, &s.TotalRounds, &s.Wins); err != nil {
			return nil, fmt.Errorf("scanning leaderboard stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
