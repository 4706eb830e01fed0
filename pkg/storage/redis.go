package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout. Source, metric, and session identifiers are validated
// against a conservative charset before keying, so the ":" separators stay
// unambiguous.
const (
	redisPointsKey   = "metrial:points:%s:%s"   // list of DataPoint JSON
	redisMetricsKey  = "metrial:metrics"        // set of "<source>:<metric>"
	redisSessionKey  = "metrial:session:%s"     // session JSON
	redisSessionsKey = "metrial:sessions"       // set of session ids
	redisBaselineKey = "metrial:baseline:%s:%s" // baseline JSON
	redisRecordsKey  = "metrial:records:%s"     // list of PerformanceRecord JSON
	redisOppsKey     = "metrial:opps:%s"        // list of Opportunity JSON
	redisOpsKey      = "metrial:ops:%s"         // list of ScalingOperation JSON
)

// RedisStore implements Store using Redis as a backend. It enables
// multi-instance deployments by sharing sessions, samples, and results, with
// retention-based expiration on the sample and result streams.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	mu        sync.Mutex
}

// NewRedisStore creates a Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - retention: expiry for sample and result streams (0 uses 7 days)
//
// Returns an error if the connection to Redis fails or if parameters are
// invalid; the caller treats that as a fatal initialization failure.
func NewRedisStore(addr, password string, db int, retention time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	if retention == 0 {
		retention = 7 * 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client:    client,
		retention: retention,
	}, nil
}

func validateKeyPart(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid %s %q: only alphanumeric, hyphens, and underscores allowed", kind, name)
		}
	}
	return nil
}

// AppendPoint pushes the point onto its stream's list and refreshes the
// stream's expiry. The stream is also registered in the metric index so
// MetricKeys can enumerate it.
func (r *RedisStore) AppendPoint(ctx context.Context, p DataPoint) error {
	if err := validateKeyPart("source", p.Source); err != nil {
		return err
	}
	if err := validateKeyPart("metric_name", p.MetricName); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal data point: %w", err)
	}

	key := fmt.Sprintf(redisPointsKey, p.Source, p.MetricName)

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, r.retention)
	pipe.SAdd(ctx, redisMetricsKey, p.Source+":"+p.MetricName)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store data point in redis: %w", err)
	}

	return nil
}

// PointsSince returns the stream's points with Timestamp >= since. The time
// filter is applied client-side; streams are short-lived thanks to the
// retention expiry, so a full-list read stays small.
func (r *RedisStore) PointsSince(ctx context.Context, source, metric string, since time.Time) ([]DataPoint, error) {
	if err := validateKeyPart("source", source); err != nil {
		return nil, err
	}
	if err := validateKeyPart("metric_name", metric); err != nil {
		return nil, err
	}

	key := fmt.Sprintf(redisPointsKey, source, metric)

	raw, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read data points from redis: %w", err)
	}

	var out []DataPoint
	for _, item := range raw {
		var p DataPoint
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data point: %w", err)
		}
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

// MetricKeys lists every stream registered in the metric index.
func (r *RedisStore) MetricKeys(ctx context.Context) ([]MetricKey, error) {
	members, err := r.client.SMembers(ctx, redisMetricsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metric index from redis: %w", err)
	}

	out := make([]MetricKey, 0, len(members))
	for _, m := range members {
		source, name, found := strings.Cut(m, ":")
		if !found {
			continue
		}
		out = append(out, MetricKey{Source: source, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// PutSession writes the session JSON and registers the id in the session
// index. Finalization overwrites the creation-time copy under the same key.
func (r *RedisStore) PutSession(ctx context.Context, s Session) error {
	if err := validateKeyPart("session id", s.ID); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(redisSessionKey, s.ID), data, r.retention)
	pipe.SAdd(ctx, redisSessionsKey, s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}

	return nil
}

// GetSession returns the session with the given id, or ErrNotFound.
func (r *RedisStore) GetSession(ctx context.Context, id string) (Session, error) {
	if err := validateKeyPart("session id", id); err != nil {
		return Session{}, err
	}

	data, err := r.client.Get(ctx, fmt.Sprintf(redisSessionKey, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return Session{}, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions ordered by start time. Ids whose session
// JSON has expired are skipped.
func (r *RedisStore) ListSessions(ctx context.Context, kind SessionKind) ([]Session, error) {
	ids, err := r.client.SMembers(ctx, redisSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session index from redis: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf(redisSessionKey, id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions from redis: %w", err)
	}

	var out []Session
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // expired since indexed
		}
		var s Session
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if kind != "" && s.Kind != kind {
			continue
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PutBaseline stores the live baseline for its (source, metric) pair.
// Baselines do not expire; they are replaced on recomputation.
func (r *RedisStore) PutBaseline(ctx context.Context, b Baseline) error {
	if err := validateKeyPart("source", b.Source); err != nil {
		return err
	}
	if err := validateKeyPart("metric_name", b.MetricName); err != nil {
		return err
	}

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}

	key := fmt.Sprintf(redisBaselineKey, b.Source, b.MetricName)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store baseline in redis: %w", err)
	}
	return nil
}

// GetBaseline returns the live baseline for the pair, or ErrNotFound.
func (r *RedisStore) GetBaseline(ctx context.Context, source, metric string) (Baseline, error) {
	if err := validateKeyPart("source", source); err != nil {
		return Baseline{}, err
	}
	if err := validateKeyPart("metric_name", metric); err != nil {
		return Baseline{}, err
	}

	key := fmt.Sprintf(redisBaselineKey, source, metric)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Baseline{}, fmt.Errorf("baseline %s/%s: %w", source, metric, ErrNotFound)
		}
		return Baseline{}, fmt.Errorf("failed to get baseline from redis: %w", err)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return Baseline{}, fmt.Errorf("failed to unmarshal baseline: %w", err)
	}
	return b, nil
}

func (r *RedisStore) appendToList(ctx context.Context, key string, v any, what string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", what, err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, r.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store %s in redis: %w", what, err)
	}
	return nil
}

// AppendPerformanceRecord stores one analysis result on the session's list.
func (r *RedisStore) AppendPerformanceRecord(ctx context.Context, rec PerformanceRecord) error {
	if err := validateKeyPart("session id", rec.SessionID); err != nil {
		return err
	}
	return r.appendToList(ctx, fmt.Sprintf(redisRecordsKey, rec.SessionID), rec, "performance record")
}

// PerformanceRecords returns the session's records in append order.
func (r *RedisStore) PerformanceRecords(ctx context.Context, sessionID string) ([]PerformanceRecord, error) {
	if err := validateKeyPart("session id", sessionID); err != nil {
		return nil, err
	}

	raw, err := r.client.LRange(ctx, fmt.Sprintf(redisRecordsKey, sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read performance records from redis: %w", err)
	}

	var out []PerformanceRecord
	for _, item := range raw {
		var rec PerformanceRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal performance record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// AppendOpportunity stores one recommendation on the session's list.
func (r *RedisStore) AppendOpportunity(ctx context.Context, o Opportunity) error {
	if err := validateKeyPart("session id", o.SessionID); err != nil {
		return err
	}
	return r.appendToList(ctx, fmt.Sprintf(redisOppsKey, o.SessionID), o, "opportunity")
}

// Opportunities returns the session's opportunities in append order.
func (r *RedisStore) Opportunities(ctx context.Context, sessionID string) ([]Opportunity, error) {
	if err := validateKeyPart("session id", sessionID); err != nil {
		return nil, err
	}

	raw, err := r.client.LRange(ctx, fmt.Sprintf(redisOppsKey, sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read opportunities from redis: %w", err)
	}

	var out []Opportunity
	for _, item := range raw {
		var o Opportunity
		if err := json.Unmarshal([]byte(item), &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal opportunity: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}

// AppendScalingOperation stores one scaling outcome on the session's list.
func (r *RedisStore) AppendScalingOperation(ctx context.Context, op ScalingOperation) error {
	if err := validateKeyPart("session id", op.SessionID); err != nil {
		return err
	}
	return r.appendToList(ctx, fmt.Sprintf(redisOpsKey, op.SessionID), op, "scaling operation")
}

// ScalingOperations returns the session's operations in append order.
func (r *RedisStore) ScalingOperations(ctx context.Context, sessionID string) ([]ScalingOperation, error) {
	if err := validateKeyPart("session id", sessionID); err != nil {
		return nil, err
	}

	raw, err := r.client.LRange(ctx, fmt.Sprintf(redisOpsKey, sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read scaling operations from redis: %w", err)
	}

	var out []ScalingOperation
	for _, item := range raw {
		var op ScalingOperation
		if err := json.Unmarshal([]byte(item), &op); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scaling operation: %w", err)
		}
		out = append(out, op)
	}
	return out, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
