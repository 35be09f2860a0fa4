package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prediction-game/internal/config"
	"github.com/prediction-game/internal/domain"
)

const (
	pointsKey      = "game:leaderboard:points"
	activeRoundKey = "game:round:active"

	// The active-round pointer can go stale for at most this long before a
	// store lookup refreshes it.
	activeRoundTTL = 30 * time.Second
)

// Cache provides Redis-backed read paths: the points sorted set mirrored from
// the store, cached player projections and the active round pointer.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

func playerInfoKey(name string) string {
	return fmt.Sprintf("game:player:%s:info", name)
}

// SetPoints mirrors a player's points balance into the sorted set.
func (c *Cache) SetPoints(ctx context.Context, handle string, points int64) error {
	err := c.client.ZAdd(ctx, pointsKey, redis.Z{
		Score:  float64(points),
		Member: handle,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting points: %w", err)
	}
	return nil
}

// BatchSetPoints mirrors many balances using pipelining.
func (c *Cache) BatchSetPoints(ctx context.Context, points map[string]int64) error {
	pipe := c.client.Pipeline()
	for handle, pts := range points {
		pipe.ZAdd(ctx, pointsKey, redis.Z{
			Score:  float64(pts),
			Member: handle,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting points: %w", err)
	}
	return nil
}

// RemovePlayer drops a player's entries, used on soft delete.
func (c *Cache) RemovePlayer(ctx context.Context, handle string) error {
	pipe := c.client.Pipeline()
	pipe.ZRem(ctx, pointsKey, handle)
	pipe.Del(ctx, playerInfoKey(handle))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing player: %w", err)
	}
	return nil
}

// PointsRank returns a player's 1-indexed position in the points ordering.
// Note this is a position, not the dense competition rank the leaderboard
// renders; it is used for cheap "around me" lookups only.
func (c *Cache) PointsRank(ctx context.Context, handle string) (int64, error) {
	rank, err := c.client.ZRevRank(ctx, pointsKey, handle).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, domain.ErrPlayerNotFound
		}
		return 0, fmt.Errorf("getting points rank: %w", err)
	}
	return rank + 1, nil
}

// TopPoints returns the top n board rows by mirrored points, best first.
func (c *Cache) TopPoints(ctx context.Context, n int) ([]domain.PointsStanding, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, pointsKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top points: %w", err)
	}

	board := make([]domain.PointsStanding, 0, len(results))
	for i, result := range results {
		board = append(board, domain.PointsStanding{
			Position: int64(i) + 1,
			Handle:   result.Member.(string),
			Points:   int64(result.Score),
		})
	}
	return board, nil
}

// SetPlayerInfo caches a player projection.
func (c *Cache) SetPlayerInfo(ctx context.Context, info domain.PlayerInfo) error {
	err := c.client.HSet(ctx, playerInfoKey(info.Name),
		"name", info.Name,
		"is_ai", strconv.FormatBool(info.IsAI),
		"points", info.Points,
	).Err()
	if err != nil {
		return fmt.Errorf("setting player info: %w", err)
	}
	return nil
}

// GetPlayerInfo retrieves a cached player projection.
func (c *Cache) GetPlayerInfo(ctx context.Context, handle string) (*domain.PlayerInfo, error) {
	result, err := c.client.HGetAll(ctx, playerInfoKey(handle)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting player info: %w", err)
	}
	if len(result) == 0 {
		return nil, domain.ErrPlayerNotFound
	}

	isAI, _ := strconv.ParseBool(result["is_ai"])
	points, _ := strconv.ParseInt(result["points"], 10, 64)
	return &domain.PlayerInfo{
		Name:   result["name"],
		IsAI:   isAI,
		Points: points,
	}, nil
}

// SetActiveRound caches the id of the round currently accepting predictions.
func (c *Cache) SetActiveRound(ctx context.Context, id int64) error {
	if err := c.client.Set(ctx, activeRoundKey, id, activeRoundTTL).Err(); err != nil {
		return fmt.Errorf("setting active round: %w", err)
	}
	return nil
}

// ActiveRound returns the cached active round id, or ErrRoundNotFound when
// the pointer is unset or expired.
func (c *Cache) ActiveRound(ctx context.Context) (int64, error) {
	id, err := c.client.Get(ctx, activeRoundKey).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, domain.ErrRoundNotFound
		}
		return 0, fmt.Errorf("getting active round: %w", err)
	}
	return id, nil
}

// InvalidateActiveRound drops the cached pointer, forcing the next lookup to
// hit the store.
func (c *Cache) InvalidateActiveRound(ctx context.Context) error {
	if err := c.client.Del(ctx, activeRoundKey).Err(); err != nil {
		return fmt.Errorf("invalidating active round: %w", err)
	}
	return nil
}
