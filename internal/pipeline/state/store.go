package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/coursepilot/coursepilot-backend/internal/pipeline/record"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("course generation record not found")
	ErrVersionConflict = errors.New("course generation record version conflict")
)

// Store is the durable key-value home of CourseGenerationRecords. Put is a
// compare-and-swap on schema_version: two workers racing the same transition
// produce exactly one winner, and the loser backs off without publishing.
type Store interface {
	Get(ctx context.Context, courseID uuid.UUID) (*record.CourseGenerationRecord, error)
	// Put persists rec iff the stored schema_version equals expectedVersion.
	// expectedVersion 0 means "create"; it fails with ErrVersionConflict if
	// the key already exists. rec.SchemaVersion is set to expectedVersion+1
	// on success.
	Put(ctx context.Context, rec *record.CourseGenerationRecord, expectedVersion int64) error
}

// casScript compares the stored version field against the expected version,
// then writes the new payload and version atomically.
//
// KEYS[1] = record key, ARGV[1] = expected version, ARGV[2] = new version,
// ARGV[3] = payload.
const casScript = `
local cur = redis.call("HGET", KEYS[1], "version")
if cur == false then
  if tonumber(ARGV[1]) ~= 0 then
    return -1
  end
elseif tonumber(cur) ~= tonumber(ARGV[1]) then
  return -2
end
redis.call("HSET", KEYS[1], "version", ARGV[2], "payload", ARGV[3])
return 1
`

type redisStore struct {
	log    *logger.Logger
	rdb    *goredis.Client
	cas    *goredis.Script
	prefix string
}

func NewRedisStore(log *logger.Logger, rdb *goredis.Client) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	prefix := strings.TrimSpace(os.Getenv("COURSEGEN_STATE_PREFIX"))
	if prefix == "" {
		prefix = "coursegen:record:"
	}
	return &redisStore{
		log:    log.With("service", "CourseGenStateStore"),
		rdb:    rdb,
		cas:    goredis.NewScript(casScript),
		prefix: prefix,
	}, nil
}

// NewRedisClient builds the shared redis client from env, pinging before use.
func NewRedisClient(log *logger.Logger) (*goredis.Client, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("Connected to Redis", "addr", addr)
	return rdb, nil
}

func (s *redisStore) key(courseID uuid.UUID) string {
	return s.prefix + courseID.String()
}

func (s *redisStore) Get(ctx context.Context, courseID uuid.UUID) (*record.CourseGenerationRecord, error) {
	payload, err := s.rdb.HGet(ctx, s.key(courseID), "payload").Result()
	if err == goredis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state get: %w", err)
	}
	var rec record.CourseGenerationRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("state decode: %w", err)
	}
	return &rec, nil
}

func (s *redisStore) Put(ctx context.Context, rec *record.CourseGenerationRecord, expectedVersion int64) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	next := expectedVersion + 1
	rec.SchemaVersion = next
	rec.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("state encode: %w", err)
	}

	res, err := s.cas.Run(ctx, s.rdb, []string{s.key(rec.CourseID)}, expectedVersion, next, string(payload)).Int()
	if err != nil {
		return fmt.Errorf("state cas: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ErrNotFound
	case -2:
		return ErrVersionConflict
	default:
		return fmt.Errorf("state cas: unexpected result %d", res)
	}
}
