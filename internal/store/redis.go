package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joescharf/desk/internal/models"
)

// RedisStore implements Store on Redis. Records are JSON values under
// prefixed keys, indexed by sorted sets scored on their timestamps.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis server at url and verifies the
// connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{rdb: rdb, prefix: "desk:"}, nil
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// Migrate is a no-op beyond checking the connection; Redis has no schema.
func (s *RedisStore) Migrate(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// --- Sessions ---

func (s *RedisStore) SaveSession(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key("session", sess.ID), data, 0)
		p.ZAdd(ctx, s.key("sessions"), redis.Z{Score: float64(sess.LastActivity.UnixNano()), Member: sess.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.rdb.Get(ctx, s.key("session", id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return decodeSession(data)
}

func (s *RedisStore) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.key("sessions"), 0, stop(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	values, err := s.values(ctx, "session", ids)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []*models.Session
	for _, v := range values {
		sess, err := decodeSession(v)
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, s.key("session", id)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.rdb.ZRem(ctx, s.key("sessions"), id)
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Fault reports ---

func (s *RedisStore) SaveFaultReport(ctx context.Context, r *models.FaultReport) error {
	if r.ID == "" {
		r.ID = models.NewID(models.PrefixFault)
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode fault report: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key("fault", r.ID), data, 0)
		p.ZAdd(ctx, s.key("faults"), redis.Z{Score: float64(r.CreatedAt.UnixNano()), Member: r.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save fault report: %w", err)
	}
	return nil
}

func (s *RedisStore) GetFaultReport(ctx context.Context, id string) (*models.FaultReport, error) {
	data, err := s.rdb.Get(ctx, s.key("fault", id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("fault report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get fault report: %w", err)
	}
	r := &models.FaultReport{}
	if err := json.Unmarshal([]byte(data), r); err != nil {
		return nil, fmt.Errorf("decode fault report: %w", err)
	}
	return r, nil
}

// ListFaultReports filters in memory after reading the index newest first.
func (s *RedisStore) ListFaultReports(ctx context.Context, filter FaultListFilter) ([]*models.FaultReport, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.key("faults"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list fault reports: %w", err)
	}
	values, err := s.values(ctx, "fault", ids)
	if err != nil {
		return nil, fmt.Errorf("list fault reports: %w", err)
	}
	var out []*models.FaultReport
	for _, v := range values {
		r := &models.FaultReport{}
		if err := json.Unmarshal([]byte(v), r); err != nil {
			continue
		}
		if filter.SessionID != "" && r.SessionID != filter.SessionID {
			continue
		}
		if filter.Urgency != "" && r.Urgency != filter.Urgency {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// --- Escalations ---

func (s *RedisStore) SaveEscalation(ctx context.Context, e *models.EscalationContext) error {
	if e.ID == "" {
		e.ID = models.NewID(models.PrefixEscalation)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode escalation: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.key("escalation", e.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("save escalation: %w", err)
	}
	if !ok {
		return fmt.Errorf("save escalation: %s already exists", e.ID)
	}
	if err := s.rdb.ZAdd(ctx, s.key("escalations"), redis.Z{Score: float64(e.CreatedAt.UnixNano()), Member: e.ID}).Err(); err != nil {
		return fmt.Errorf("index escalation: %w", err)
	}
	return nil
}

func (s *RedisStore) GetEscalation(ctx context.Context, id string) (*models.EscalationContext, error) {
	data, err := s.rdb.Get(ctx, s.key("escalation", id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("escalation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get escalation: %w", err)
	}
	e := &models.EscalationContext{}
	if err := json.Unmarshal([]byte(data), e); err != nil {
		return nil, fmt.Errorf("decode escalation: %w", err)
	}
	return e, nil
}

func (s *RedisStore) ListEscalations(ctx context.Context, filter EscalationListFilter) ([]*models.EscalationContext, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.key("escalations"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	values, err := s.values(ctx, "escalation", ids)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	var out []*models.EscalationContext
	for _, v := range values {
		e := &models.EscalationContext{}
		if err := json.Unmarshal([]byte(v), e); err != nil {
			continue
		}
		if filter.SessionID != "" && e.SessionID != filter.SessionID {
			continue
		}
		if filter.Reason != "" && e.Reason != filter.Reason {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// --- Notifications ---

func (s *RedisStore) RecordNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = models.NewID(models.PrefixNotification)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.rdb.RPush(ctx, s.key("notifications"), data).Err(); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

func (s *RedisStore) ListNotifications(ctx context.Context, recordID string) ([]*models.Notification, error) {
	values, err := s.rdb.LRange(ctx, s.key("notifications"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	var out []*models.Notification
	for _, v := range values {
		n := &models.Notification{}
		if err := json.Unmarshal([]byte(v), n); err != nil {
			continue
		}
		if recordID != "" && n.RecordID != recordID {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// values fetches the JSON values for ids in order, skipping ids whose key
// has gone.
func (s *RedisStore) values(ctx context.Context, kind string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(kind, id)
	}
	raw, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

func stop(limit int) int64 {
	if limit <= 0 {
		return -1
	}
	return int64(limit - 1)
}
