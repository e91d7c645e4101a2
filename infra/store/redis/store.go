// Package redis keeps reference counters in Redis so several dispatch
// processes can allocate job references against one shared sequence.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	counters := redisstore.New(client, "haulage:")
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/reference"
)

var _ reference.CounterStore = (*CounterStore)(nil)

// Config describes the connection used by NewClient.
type Config struct {
	Addr          string `json:"addr"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	Prefix        string `json:"prefix"`
	DialTimeoutMS int    `json:"dial_timeout_ms"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.DialTimeoutMS <= 0 {
		c.DialTimeoutMS = 5000
	}
}

// NewClient dials Redis and pings it once.
func NewClient(cfg Config) (*redis.Client, error) {
	cfg.SetDefaults()
	timeout := time.Duration(cfg.DialTimeoutMS) * time.Millisecond
	cli := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return cli, nil
}

// nextScript bumps the sequence modulo ARGV[2] and records the docket id in
// the same round trip. The first call for a customer yields 1.
var nextScript = redis.NewScript(`
local seq = redis.call('HINCRBY', KEYS[1], 'last_sequence', 1)
local mod = tonumber(ARGV[2])
if seq >= mod then
  seq = seq % mod
  redis.call('HSET', KEYS[1], 'last_sequence', seq)
end
redis.call('HSET', KEYS[1], 'docket_id', ARGV[1])
return seq
`)

// CounterStore implements reference.CounterStore over a Redis hash per customer.
// The caller owns the client lifecycle.
type CounterStore struct {
	client redis.Cmdable
	prefix string
}

// New returns a counter store using keys under prefix.
func New(client redis.Cmdable, prefix string) *CounterStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &CounterStore{client: client, prefix: prefix}
}

func (s *CounterStore) Next(ctx context.Context, customerID string, docketID int) (int, error) {
	n, err := nextScript.Run(ctx, s.client, []string{s.counterKey(customerID)},
		docketID, reference.SequenceModulo).Int()
	if err != nil {
		return 0, fmt.Errorf("haulage/redis: increment counter: %w", err)
	}
	return n, nil
}

// Get reads the counter hash of a customer.
func (s *CounterStore) Get(ctx context.Context, customerID string) (model.CustomerJobCounter, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.counterKey(customerID)).Result()
	if err != nil {
		return model.CustomerJobCounter{}, false, fmt.Errorf("haulage/redis: get counter: %w", err)
	}
	if len(vals) == 0 {
		return model.CustomerJobCounter{}, false, nil
	}
	out := model.CustomerJobCounter{CustomerID: customerID}
	if out.LastSequence, err = strconv.Atoi(vals["last_sequence"]); err != nil {
		return model.CustomerJobCounter{}, false, fmt.Errorf("haulage/redis: bad last_sequence: %w", err)
	}
	if out.DocketID, err = strconv.Atoi(vals["docket_id"]); err != nil {
		return model.CustomerJobCounter{}, false, fmt.Errorf("haulage/redis: bad docket_id: %w", err)
	}
	return out, true, nil
}

// Set overwrites a counter, e.g. when seeding from another backend.
func (s *CounterStore) Set(ctx context.Context, c model.CustomerJobCounter) error {
	err := s.client.HSet(ctx, s.counterKey(c.CustomerID),
		"last_sequence", c.LastSequence, "docket_id", c.DocketID).Err()
	if err != nil {
		return fmt.Errorf("haulage/redis: set counter: %w", err)
	}
	return nil
}

// Ping verifies the connection.
func (s *CounterStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
