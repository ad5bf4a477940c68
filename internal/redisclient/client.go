package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"affiliate-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

//go:embed scripts/unlock.lua
var unlockScript string

const (
	pendingRunKey = "commission:run:pending"
	balanceKey    = "affiliate:balances"
)

type Client struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:    rdb,
		unlock: redis.NewScript(unlockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SavePendingRun stores the pending commission run, replacing any
// previous one. Regeneration is rebuild-from-scratch, never additive.
func (c *Client) SavePendingRun(ctx context.Context, run *models.CommissionRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal commission run: %w", err)
	}
	return c.rdb.Set(ctx, pendingRunKey, data, 0).Err()
}

// GetPendingRun retrieves the pending commission run, nil when none exists
func (c *Client) GetPendingRun(ctx context.Context) (*models.CommissionRun, error) {
	data, err := c.rdb.Get(ctx, pendingRunKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var run models.CommissionRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal commission run: %w", err)
	}
	return &run, nil
}

// ClearPendingRun removes the pending commission run
func (c *Client) ClearPendingRun(ctx context.Context) error {
	return c.rdb.Del(ctx, pendingRunKey).Err()
}

// AcquireLock acquires a named lock with a TTL. Returns false when the
// lock is already held.
func (c *Client) AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
}

// ReleaseLock releases a lock if the token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.unlock.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("unlock script failed: %w", err)
	}
	return nil
}

// AddToBalance increments an affiliate's lifetime payout balance. The
// increment is sent as the decimal's string form so the amount is not
// rounded through a float64 on the way in.
func (c *Client) AddToBalance(ctx context.Context, affiliateID int64, amount decimal.Decimal) error {
	return c.rdb.Do(ctx, "HINCRBYFLOAT", balanceKey, fmt.Sprintf("%d", affiliateID), amount.String()).Err()
}

// GetBalance retrieves an affiliate's lifetime payout balance
func (c *Client) GetBalance(ctx context.Context, affiliateID int64) (decimal.Decimal, error) {
	val, err := c.rdb.HGet(ctx, balanceKey, fmt.Sprintf("%d", affiliateID)).Result()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("corrupt balance for affiliate %d: %w", affiliateID, err)
	}
	return balance, nil
}
