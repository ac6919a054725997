package guard

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// redisStore keeps sliding windows in sorted sets scored by unix-nano
// timestamps so multiple instances share one view of recent requests.
type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) WindowStore {
	return &redisStore{client: client}
}

func (s *redisStore) Count(ctx context.Context, key string, cutoff time.Time) (int, time.Time, error) {
	rkey := s.key(key)
	if err := s.client.ZRemRangeByScore(ctx, rkey, "-inf", strconv.FormatInt(cutoff.UnixNano(), 10)).Err(); err != nil {
		return 0, time.Time{}, err
	}

	count, err := s.client.ZCard(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 0 {
		return 0, time.Time{}, nil
	}

	oldestMembers, err := s.client.ZRangeWithScores(ctx, rkey, 0, 0).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	oldest := time.Time{}
	if len(oldestMembers) > 0 {
		oldest = time.Unix(0, int64(oldestMembers[0].Score)).UTC()
	}
	return int(count), oldest, nil
}

func (s *redisStore) Append(ctx context.Context, key string, ts time.Time, ttl time.Duration) error {
	rkey := s.key(key)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, rkey, redis.Z{
		Score:  float64(ts.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, rkey, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) key(key string) string {
	return "guard:window:" + key
}
