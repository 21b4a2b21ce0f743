package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"

	"github.com/redis/go-redis/v9"
)

// Redis key patterns
const (
	keyResults   = "%s:results"   // List: JSON results in log order
	keyEvaluated = "%s:evaluated" // Set: annotator/task/seed members

	defaultKeyPrefix = "evalconsole"
	defaultOpTimeout = 5 * time.Second
)

// redisLog shares one result log between annotators on different machines
type redisLog struct {
	client    redis.UniversalClient
	keyPrefix string
	timeout   time.Duration
}

// NewRedisResultLog - result log kept in redis under keyPrefix
func NewRedisResultLog(client redis.UniversalClient, keyPrefix string) interfaces.ResultStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &redisLog{
		client:    client,
		keyPrefix: keyPrefix,
		timeout:   defaultOpTimeout,
	}
}

// NewRedisClient - client from a redis:// URL
func NewRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return redis.NewClient(opts), nil
}

func (s *redisLog) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// evaluatedMember identifies a task for one annotator
func evaluatedMember(annotator entities.Annotator, task entities.Task) string {
	return strings.Join([]string{annotator.Email, task.Name, strconv.Itoa(task.Seed)}, "\x1f")
}

// Append - pushes the result and marks the task evaluated in one transaction
func (s *redisLog) Append(result entities.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	ctx, cancel := s.opContext()
	defer cancel()

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, fmt.Sprintf(keyResults, s.keyPrefix), data)
		pipe.SAdd(ctx, fmt.Sprintf(keyEvaluated, s.keyPrefix), evaluatedMember(result.Annotator, result.Task))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append result: %w", err)
	}
	return nil
}

// Load - every logged result in append order
func (s *redisLog) Load() ([]entities.Result, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	raw, err := s.client.LRange(ctx, fmt.Sprintf(keyResults, s.keyPrefix), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	results := make([]entities.Result, 0, len(raw))
	for i, item := range raw {
		var r entities.Result
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("failed to decode result %d: %w", i, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// Reset - drops the log and the evaluated set
func (s *redisLog) Reset() error {
	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.client.Del(ctx,
		fmt.Sprintf(keyResults, s.keyPrefix),
		fmt.Sprintf(keyEvaluated, s.keyPrefix),
	).Err(); err != nil {
		return fmt.Errorf("failed to reset results: %w", err)
	}
	return nil
}

func (s *redisLog) AlreadyEvaluated(annotator entities.Annotator, task entities.Task) (bool, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	ok, err := s.client.SIsMember(ctx, fmt.Sprintf(keyEvaluated, s.keyPrefix), evaluatedMember(annotator, task)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check evaluated set: %w", err)
	}
	return ok, nil
}
