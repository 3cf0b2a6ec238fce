// Package memory owns every live conversation session. Each session has its
// own lock; the session map has another that is held only for lookups and
// inserts. All changes go through Update so that no caller ever holds a
// pointer into shared state.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/patterns"
	"github.com/joescharf/desk/internal/store"
)

// DefaultTimeout is how long a session may stay idle before Sweep evicts it.
const DefaultTimeout = 60 * time.Minute

// AttrBuyingSignals holds a comma-separated list of buying signals.
const AttrBuyingSignals = "buying_signals"

const saveTimeout = 5 * time.Second

// Store is the slice of store.Store that sessions need. Persistence is best
// effort: errors are logged and never returned.
type Store interface {
	LoadSession(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error
}

// Options configures a Service.
type Options struct {
	Timeout time.Duration
	// Store is optional. Without one, sessions live only in memory.
	Store  Store
	Now    func() time.Time
	Logger *slog.Logger
}

type entry struct {
	mu      sync.Mutex
	session *models.Session
	removed bool
}

// Service holds the sessions.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	lib     *patterns.Library
	store   Store
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an empty Service.
func New(lib *patterns.Library, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		sessions: make(map[string]*entry),
		lib:      lib,
		store:    opts.Store,
		timeout:  opts.Timeout,
		now:      opts.Now,
		logger:   opts.Logger,
	}
}

// acquire returns the entry for id with its lock held, creating the session
// or loading its snapshot when needed.
func (m *Service) acquire(ctx context.Context, id string) *entry {
	for {
		m.mu.RLock()
		e := m.sessions[id]
		m.mu.RUnlock()
		if e == nil {
			m.mu.Lock()
			if e = m.sessions[id]; e == nil {
				e = &entry{}
				m.sessions[id] = e
			}
			m.mu.Unlock()
		}

		e.mu.Lock()
		if e.removed {
			// Swept between lookup and lock.
			e.mu.Unlock()
			continue
		}
		if e.session == nil {
			e.session = m.load(ctx, id)
		}
		return e
	}
}

func (m *Service) load(ctx context.Context, id string) *models.Session {
	fresh := models.NewSession(id, m.now())
	if m.store == nil {
		return fresh
	}
	s, err := m.store.LoadSession(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("session snapshot unreadable, starting fresh", "session_id", id, "err", err)
		}
		return fresh
	}
	if s.ID != id {
		m.logger.Warn("session snapshot has wrong id, starting fresh", "session_id", id, "snapshot_id", s.ID)
		return fresh
	}
	if s.Attributes == nil {
		s.Attributes = make(map[string]models.Attribute)
	}
	s.RaiseLeadScore(models.MinLeadScore)
	return s
}

func (m *Service) save(ctx context.Context, s *models.Session) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := m.store.SaveSession(ctx, s); err != nil {
		m.logger.Warn("save session snapshot", "session_id", s.ID, "err", err)
	}
}

// Update runs fn on a private copy of the session under its lock. If fn
// succeeds the copy replaces the session, its activity time is bumped and a
// snapshot is saved. If fn fails nothing changes. The returned session is a
// copy owned by the caller.
func (m *Service) Update(ctx context.Context, id string, fn func(s *models.Session) error) (*models.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("update session: empty id")
	}
	e := m.acquire(ctx, id)
	defer e.mu.Unlock()

	next := e.session.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.LastActivity = m.now()
	e.session = next
	m.save(ctx, next)
	return next.Clone(), nil
}

// Get returns a copy of the session, creating it when it does not exist.
func (m *Service) Get(ctx context.Context, id string) *models.Session {
	e := m.acquire(ctx, id)
	defer e.mu.Unlock()
	return e.session.Clone()
}

// AppendMessage adds msg to the session log. A user message carrying
// classification data also updates the running intent, sentiment and lead
// score.
func (m *Service) AppendMessage(ctx context.Context, id string, msg models.Message) (*models.Session, error) {
	return m.AppendWith(ctx, id, func(*models.Session) models.Message { return msg })
}

// AppendWith builds the next message with fn and appends it as
// AppendMessage does. fn sees the session under its lock, so a message
// derived from the history is never computed against a stale log.
func (m *Service) AppendWith(ctx context.Context, id string, fn func(s *models.Session) models.Message) (*models.Session, error) {
	return m.Update(ctx, id, func(s *models.Session) error {
		msg := fn(s)
		if msg.Timestamp.IsZero() {
			msg.Timestamp = m.now()
		}
		s.Messages = append(s.Messages, msg)
		if msg.Role != models.RoleUser || msg.Meta == nil {
			return nil
		}
		if msg.Meta.Intent != "" {
			s.CurrentIntent = msg.Meta.Intent
		}
		if msg.Meta.Sentiment != "" {
			s.CurrentSentiment = msg.Meta.Sentiment
		}
		if msg.Meta.LeadScore > 0 {
			s.RaiseLeadScore(msg.Meta.LeadScore)
		}
		return nil
	})
}

// MergeAttributes stores found values. An attribute that is already known
// keeps its value unless the new one asks to overwrite.
func (m *Service) MergeAttributes(ctx context.Context, id string, found []Found) (*models.Session, error) {
	return m.Update(ctx, id, func(s *models.Session) error {
		mergeAttributes(s, found, m.now())
		return nil
	})
}

func mergeAttributes(s *models.Session, found []Found, now time.Time) {
	for _, f := range found {
		if f.Value == "" {
			continue
		}
		if _, ok := s.Attributes[f.Name]; ok && !f.Overwrite {
			continue
		}
		src := f.Source
		if src == "" {
			src = models.SourceUserInfo
		}
		s.Attributes[f.Name] = models.Attribute{Value: f.Value, Source: src, Timestamp: now}
	}
}

// RecordSignal adds signal to the session's buying signals once.
func (m *Service) RecordSignal(ctx context.Context, id, signal string) (*models.Session, error) {
	return m.Update(ctx, id, func(s *models.Session) error {
		var signals []string
		if v := s.Attr(AttrBuyingSignals); v != "" {
			signals = strings.Split(v, ",")
		}
		for _, existing := range signals {
			if existing == signal {
				return nil
			}
		}
		signals = append(signals, signal)
		s.Attributes[AttrBuyingSignals] = models.Attribute{
			Value:     strings.Join(signals, ","),
			Source:    models.SourceBuyingSignal,
			Timestamp: m.now(),
		}
		return nil
	})
}

// MergeFaultReport records the session's current fault report. An open
// report is kept; a closed one clears the slot so the next fault starts a
// new report. The report's category becomes the session's primary issue.
func (m *Service) MergeFaultReport(ctx context.Context, id string, r *models.FaultReport) (*models.Session, error) {
	return m.Update(ctx, id, func(s *models.Session) error {
		m.applyFaultReport(s, r)
		return nil
	})
}

var errNoFault = errors.New("no fault report")

// AdvanceFault runs fn under the session lock with a copy of the session and
// merges the report fn returns as MergeFaultReport does. Reading the open
// report and storing its successor happen in one step, so two messages for
// the same session cannot both open a report. When fn returns nil the
// session is left untouched and handled is false.
func (m *Service) AdvanceFault(ctx context.Context, id string, fn func(s *models.Session) *models.FaultReport) (handled bool, err error) {
	_, err = m.Update(ctx, id, func(s *models.Session) error {
		r := fn(s.Clone())
		if r == nil {
			return errNoFault
		}
		m.applyFaultReport(s, r)
		return nil
	})
	if errors.Is(err, errNoFault) {
		return false, nil
	}
	return err == nil, err
}

func (m *Service) applyFaultReport(s *models.Session, r *models.FaultReport) {
	if r == nil {
		s.OpenFault = nil
		return
	}
	if r.Category != "" && r.Category != models.CategoryOther {
		s.Attributes[models.AttrPrimaryIssue] = models.Attribute{
			Value:     string(r.Category),
			Source:    models.SourceIssueCategory,
			Timestamp: m.now(),
		}
	}
	if !r.Open() {
		s.OpenFault = nil
		return
	}
	c := *r
	s.OpenFault = &c
}

// Snapshot returns a copy of a live session without creating or loading it.
func (m *Service) Snapshot(id string) (*models.Session, bool) {
	m.mu.RLock()
	e := m.sessions[id]
	m.mu.RUnlock()
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.session == nil {
		return nil, false
	}
	return e.session.Clone(), true
}

// List returns copies of all live sessions, most recently active first.
func (m *Service) List() []*models.Session {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*models.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed && e.session != nil {
			out = append(out, e.session.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Len is the number of live sessions.
func (m *Service) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the timeout and returns how
// many it removed. Each session's lock is taken before it is inspected, so
// a session that is being updated is never evicted under the update.
func (m *Service) Sweep() int {
	now := m.now()

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	entries := make([]*entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	removed := 0
	for i, e := range entries {
		e.mu.Lock()
		if !e.removed && e.session != nil && now.Sub(e.session.LastActivity) > m.timeout {
			m.mu.Lock()
			if m.sessions[ids[i]] == e {
				delete(m.sessions, ids[i])
			}
			m.mu.Unlock()
			e.removed = true
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Remove drops a live session. It waits for any update in flight and
// reports whether a session existed.
func (m *Service) Remove(id string) bool {
	m.mu.RLock()
	e := m.sessions[id]
	m.mu.RUnlock()
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	m.mu.Lock()
	if m.sessions[id] == e {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	e.removed = true
	return true
}
