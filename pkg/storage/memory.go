package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore implements Store entirely in memory.
// It is safe for concurrent use by multiple goroutines.
//
// A single RWMutex covers all record families; readers receive copies, so
// callers can never alias the store's internal slices. If a retention window
// is configured, a background goroutine removes data points that have aged
// out. For deployments requiring durability across restarts, use RedisStore
// instead.
type MemoryStore struct {
	mu        sync.RWMutex
	points    map[MetricKey][]DataPoint
	keys      []MetricKey
	sessions  map[string]Session
	order     []string
	baselines map[MetricKey]Baseline
	records   map[string][]PerformanceRecord
	opps      map[string][]Opportunity
	ops       map[string][]ScalingOperation

	retention     time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory store with no retention limit.
// Data points are kept indefinitely. The store is ready to use immediately.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		points:    make(map[MetricKey][]DataPoint),
		sessions:  make(map[string]Session),
		baselines: make(map[MetricKey]Baseline),
		records:   make(map[string][]PerformanceRecord),
		opps:      make(map[string][]Opportunity),
		ops:       make(map[string][]ScalingOperation),
	}
}

// NewMemoryStoreWithRetention creates an in-memory store that drops data
// points older than retention. A background goroutine prunes on
// cleanupInterval (defaulting to one minute).
//
// The cleanup goroutine must be stopped by calling Stop() when the store is
// no longer needed to prevent goroutine leaks.
func NewMemoryStoreWithRetention(retention, cleanupInterval time.Duration) *MemoryStore {
	if retention <= 0 {
		panic("retention must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := NewMemoryStore()
	store.retention = retention
	store.cleanupTicker = time.NewTicker(cleanupInterval)
	store.stopCleanup = make(chan struct{})
	store.cleanupDone = make(chan struct{})

	go store.runCleanup()

	return store
}

// Stop gracefully shuts down the background cleanup goroutine. It blocks
// until cleanup is complete. Calling Stop multiple times, or on a store
// without retention, is safe and does nothing.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return // No cleanup goroutine running
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return // Already stopped
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes data points older than the retention window. Sessions,
// baselines, and per-session results are kept; only the raw sample streams
// age out.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retention == 0 {
		return
	}

	cutoff := time.Now().Add(-s.retention)
	for key, pts := range s.points {
		kept := pts[:0]
		for _, p := range pts {
			if !p.Timestamp.Before(cutoff) {
				kept = append(kept, p)
			}
		}
		s.points[key] = kept
	}
}

// AppendPoint stores one data point in arrival order.
func (s *MemoryStore) AppendPoint(ctx context.Context, p DataPoint) error {
	if p.Source == "" || p.MetricName == "" {
		return fmt.Errorf("data point source and metric_name cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := MetricKey{Source: p.Source, Name: p.MetricName}
	if _, known := s.points[key]; !known {
		s.keys = append(s.keys, key)
	}
	s.points[key] = append(s.points[key], p)
	return nil
}

// PointsSince returns a copy of the stream's points with
// Timestamp >= since, oldest first.
func (s *MemoryStore) PointsSince(ctx context.Context, source, metric string, since time.Time) ([]DataPoint, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DataPoint
	for _, p := range s.points[MetricKey{Source: source, Name: metric}] {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

// MetricKeys lists every stream that has received at least one point, in
// first-seen order.
func (s *MemoryStore) MetricKeys(ctx context.Context) ([]MetricKey, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MetricKey, len(s.keys))
	copy(out, s.keys)
	return out, nil
}

// PutSession writes a session, replacing any stored copy with the same id.
func (s *MemoryStore) PutSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.sessions[sess.ID]; !known {
		s.order = append(s.order, sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

// GetSession returns the session with the given id, or ErrNotFound.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	select {
	case <-ctx.Done():
		return Session{}, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, found := s.sessions[id]
	if !found {
		return Session{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return sess, nil
}

// ListSessions returns sessions in creation order, optionally filtered by
// kind.
func (s *MemoryStore) ListSessions(ctx context.Context, kind SessionKind) ([]Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, id := range s.order {
		sess := s.sessions[id]
		if kind != "" && sess.Kind != kind {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// PutBaseline stores the live baseline for its (source, metric) pair.
func (s *MemoryStore) PutBaseline(ctx context.Context, b Baseline) error {
	if b.Source == "" || b.MetricName == "" {
		return fmt.Errorf("baseline source and metric_name cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.baselines[MetricKey{Source: b.Source, Name: b.MetricName}] = b
	return nil
}

// GetBaseline returns the live baseline for the pair, or ErrNotFound.
func (s *MemoryStore) GetBaseline(ctx context.Context, source, metric string) (Baseline, error) {
	select {
	case <-ctx.Done():
		return Baseline{}, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, found := s.baselines[MetricKey{Source: source, Name: metric}]
	if !found {
		return Baseline{}, fmt.Errorf("baseline %s/%s: %w", source, metric, ErrNotFound)
	}
	return b, nil
}

// AppendPerformanceRecord stores one analysis result.
func (s *MemoryStore) AppendPerformanceRecord(ctx context.Context, r PerformanceRecord) error {
	if r.SessionID == "" {
		return fmt.Errorf("performance record session_id cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[r.SessionID] = append(s.records[r.SessionID], r)
	return nil
}

// PerformanceRecords returns a copy of the session's records in append order.
func (s *MemoryStore) PerformanceRecords(ctx context.Context, sessionID string) ([]PerformanceRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PerformanceRecord, len(s.records[sessionID]))
	copy(out, s.records[sessionID])
	return out, nil
}

// AppendOpportunity stores one recommendation.
func (s *MemoryStore) AppendOpportunity(ctx context.Context, o Opportunity) error {
	if o.SessionID == "" {
		return fmt.Errorf("opportunity session_id cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.opps[o.SessionID] = append(s.opps[o.SessionID], o)
	return nil
}

// Opportunities returns a copy of the session's opportunities in append
// order.
func (s *MemoryStore) Opportunities(ctx context.Context, sessionID string) ([]Opportunity, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Opportunity, len(s.opps[sessionID]))
	copy(out, s.opps[sessionID])
	return out, nil
}

// AppendScalingOperation stores one scaling outcome.
func (s *MemoryStore) AppendScalingOperation(ctx context.Context, op ScalingOperation) error {
	if op.SessionID == "" {
		return fmt.Errorf("scaling operation session_id cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops[op.SessionID] = append(s.ops[op.SessionID], op)
	return nil
}

// ScalingOperations returns a copy of the session's operations in append
// order.
func (s *MemoryStore) ScalingOperations(ctx context.Context, sessionID string) ([]ScalingOperation, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScalingOperation, len(s.ops[sessionID]))
	copy(out, s.ops[sessionID])
	return out, nil
}

// PointCount returns the number of stored points across all streams.
// This method is primarily useful for testing and metrics.
func (s *MemoryStore) PointCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, pts := range s.points {
		n += len(pts)
	}
	return n
}
