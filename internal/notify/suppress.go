package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nudge/internal/budget"
	"nudge/internal/core"
)

// suppressGrace keeps watermarks alive slightly past month end so checks
// running right at the boundary still see them.
const suppressGrace = 24 * time.Hour

// Suppressor is the dispatch-side watermark that caps notifications at one
// per (user, category, period). It lives entirely outside the engine: the
// engine's computation stays pure and repeatable, and without a suppressor
// every alert-worthy check produces a send.
type Suppressor struct {
	rdb *redis.Client
}

// NewSuppressor connects to Redis. Accepts either a redis:// URL or a plain
// host:port address.
func NewSuppressor(redisURL string) (*Suppressor, error) {
	opt, err := redis.ParseURL(fmt.Sprintf("redis://%s", redisURL))
	if err != nil {
		// Fallback to simple connection
		opt = &redis.Options{Addr: redisURL}
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Suppressor{rdb: rdb}, nil
}

func (s *Suppressor) Close() error {
	return s.rdb.Close()
}

// FilterFresh returns the statuses that have not yet been alerted this
// period, preserving input order.
func (s *Suppressor) FilterFresh(ctx context.Context, userID string, period core.Period, statuses []budget.AlertStatus) ([]budget.AlertStatus, error) {
	fresh := make([]budget.AlertStatus, 0, len(statuses))
	for _, st := range statuses {
		n, err := s.rdb.Exists(ctx, watermarkKey(userID, st.CategoryID, period)).Result()
		if err != nil {
			return nil, fmt.Errorf("check watermark: %w", err)
		}
		if n == 0 {
			fresh = append(fresh, st)
		}
	}
	return fresh, nil
}

// MarkSent records that the given categories were alerted this period. Call
// it only after a successful dispatch so a failed delivery can be retried.
func (s *Suppressor) MarkSent(ctx context.Context, userID string, period core.Period, statuses []budget.AlertStatus) error {
	ttl := watermarkTTL(period)
	for _, st := range statuses {
		key := watermarkKey(userID, st.CategoryID, period)
		if err := s.rdb.Set(ctx, key, string(st.Status), ttl).Err(); err != nil {
			return fmt.Errorf("set watermark %s: %w", key, err)
		}
	}
	return nil
}

func watermarkKey(userID, categoryID string, period core.Period) string {
	return fmt.Sprintf("nudge:alerted:%s:%s:%s", userID, categoryID, period.Key())
}

func watermarkTTL(period core.Period) time.Duration {
	endOfMonth := period.Start.AddDate(0, 1, 0)
	ttl := endOfMonth.Sub(period.End) + suppressGrace
	if ttl < suppressGrace {
		ttl = suppressGrace
	}
	return ttl
}
