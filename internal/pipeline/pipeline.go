// Package pipeline runs one user message through every stage of the support
// agent and returns the structured decision.
//
// Stages run in a fixed order: security, fault report, fast path, intent,
// escalation, compose. Each may end the run with its own reply. Session
// state is changed only through the memory service, one transaction at a
// time, and never while the generator is being called.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/joescharf/desk/internal/compose"
	"github.com/joescharf/desk/internal/escalation"
	"github.com/joescharf/desk/internal/fastpath"
	"github.com/joescharf/desk/internal/fault"
	"github.com/joescharf/desk/internal/memory"
	"github.com/joescharf/desk/internal/metrics"
	"github.com/joescharf/desk/internal/models"
	"github.com/joescharf/desk/internal/security"
)

// Stage names reported in metrics and logs.
const (
	StageSecurity   = "security"
	StageFault      = "fault"
	StageFastPath   = "fastpath"
	StageEscalation = "escalation"
	StageCompose    = "compose"
	StageError      = "error"
)

// FaultConfidence is reported for replies from the fault stage.
const FaultConfidence = 0.95

const recordTimeout = 5 * time.Second

// IntentClassifier scores a message against the prior conversation.
type IntentClassifier interface {
	Classify(text string, history []models.Message) models.ClassificationResult
}

// RecordStore persists fault reports and escalation packets.
type RecordStore interface {
	SaveFaultReport(ctx context.Context, r *models.FaultReport) error
	SaveEscalation(ctx context.Context, e *models.EscalationContext) error
}

// EscalationDispatcher hands escalation packets to the notification sinks.
// It must not block.
type EscalationDispatcher interface {
	DispatchEscalation(ctx context.Context, e *models.EscalationContext)
}

// Deps are the stages and collaborators of a Pipeline. Records, Notifier
// and Metrics are optional.
type Deps struct {
	Company    models.Company
	Security   *security.Filter
	Faults     *fault.Classifier
	FastPath   *fastpath.Responder
	Intent     IntentClassifier
	Escalation *escalation.Engine
	Memory     *memory.Service
	Composer   *compose.Composer
	Records    RecordStore
	Notifier   EscalationDispatcher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	Deps
}

// New checks that every required stage is present.
func New(d Deps) (*Pipeline, error) {
	switch {
	case d.Security == nil:
		return nil, fmt.Errorf("pipeline: security filter is required")
	case d.Faults == nil:
		return nil, fmt.Errorf("pipeline: fault classifier is required")
	case d.FastPath == nil:
		return nil, fmt.Errorf("pipeline: fast path responder is required")
	case d.Intent == nil:
		return nil, fmt.Errorf("pipeline: intent classifier is required")
	case d.Escalation == nil:
		return nil, fmt.Errorf("pipeline: escalation engine is required")
	case d.Memory == nil:
		return nil, fmt.Errorf("pipeline: memory service is required")
	case d.Composer == nil:
		return nil, fmt.Errorf("pipeline: composer is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Pipeline{Deps: d}, nil
}

// Request is one inbound message. History seeds a session the service has
// not seen before; it is ignored once the session has messages.
type Request struct {
	Message   string           `json:"message"`
	SessionID string           `json:"session_id"`
	History   []models.Message `json:"history,omitempty"`
}

// Response is the decision for one message.
type Response struct {
	SessionID         string           `json:"session_id"`
	Reply             string           `json:"reply"`
	Intent            models.Intent    `json:"intent"`
	Confidence        float64          `json:"confidence"`
	Sentiment         models.Sentiment `json:"sentiment"`
	LeadScore         int              `json:"lead_score"`
	Escalate          bool             `json:"escalate"`
	Action            models.Action    `json:"action"`
	SuggestedReplies  []string         `json:"suggested_replies,omitempty"`
	EscalationSummary string           `json:"escalation_summary,omitempty"`
	EscalationID      string           `json:"escalation_id,omitempty"`
	Urgency           models.Urgency   `json:"urgency,omitempty"`
	FaultReportID     string           `json:"fault_report_id,omitempty"`
	Stage             string           `json:"stage"`
}

// Process runs req through the stages. It never returns an error: hostile
// input, a failing collaborator or a bug in a stage all produce a valid
// Response.
func (p *Pipeline) Process(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	if req.SessionID == "" {
		req.SessionID = models.NewID(models.PrefixSession)
	}
	log := p.Logger.With("session_id", req.SessionID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", "panic", r, "stack", string(debug.Stack()))
			resp = Response{
				SessionID: req.SessionID,
				Reply:     compose.ErrorReply,
				Intent:    models.IntentGeneral,
				Sentiment: models.SentimentNeutral,
				LeadScore: models.MinLeadScore,
				Escalate:  true,
				Action:    models.ActionEscalate,
				Stage:     StageError,
			}
		}
		p.Metrics.Message(resp.Stage)
		p.Metrics.SetActiveSessions(p.Memory.Len())
		p.Metrics.Observe(start)
		log.Debug("message processed", "stage", resp.Stage, "intent", resp.Intent,
			"duration_ms", time.Since(start).Milliseconds())
	}()

	check := p.Security.Check(req.SessionID, req.Message)
	if !check.Allowed {
		return p.blocked(req.SessionID, check)
	}
	text := check.Text

	if err := p.seed(ctx, req.SessionID, req.History); err != nil {
		log.Warn("seed history", "err", err)
	}
	if found := p.Memory.Extract(text); len(found) > 0 {
		if _, err := p.Memory.MergeAttributes(ctx, req.SessionID, found); err != nil {
			log.Warn("merge attributes", "err", err)
		}
	}

	if resp, ok := p.faultStage(ctx, log, req.SessionID, text); ok {
		return resp
	}
	if resp, ok := p.fastPathStage(ctx, log, req.SessionID, text); ok {
		return resp
	}

	// Classification, the turn count and the append share one lock window,
	// so every message is classified against all earlier turns.
	var cls models.ClassificationResult
	turns := 0
	sess, err := p.Memory.AppendWith(ctx, req.SessionID, func(s *models.Session) models.Message {
		cls = p.Intent.Classify(text, s.Messages)
		turns = s.UserTurns() + 1
		return models.Message{
			Role:    models.RoleUser,
			Content: text,
			Meta: &models.MessageMeta{
				Intent:    cls.Intent,
				Sentiment: cls.Sentiment,
				LeadScore: cls.LeadScore,
			},
		}
	})
	if err != nil {
		log.Warn("append user message", "err", err)
		sess = p.Memory.Get(ctx, req.SessionID)
		cls = p.Intent.Classify(text, sess.Messages)
		turns = sess.UserTurns() + 1
	}
	in := escalation.Input{
		Text:      text,
		Intent:    cls.Intent,
		Sentiment: cls.Sentiment,
		LeadScore: cls.LeadScore,
		Turns:     turns,
	}

	if reason, ok := p.Escalation.Decide(in); ok {
		return p.escalate(ctx, log, reason, sess, in, cls)
	}
	return p.composeStage(ctx, log, text, sess, cls)
}

func (p *Pipeline) blocked(sessionID string, check security.Result) Response {
	p.Metrics.Reject(string(check.Kind))
	lead := models.MinLeadScore
	if s, ok := p.Memory.Snapshot(sessionID); ok {
		lead = s.LeadScore
	}
	intent := models.IntentSecurityBlock
	if check.Kind == security.KindRateLimited {
		intent = models.IntentRateLimited
	}
	return Response{
		SessionID:  sessionID,
		Reply:      check.Reply(),
		Intent:     intent,
		Confidence: 1,
		Sentiment:  models.SentimentNeutral,
		LeadScore:  lead,
		Action:     models.ActionNone,
		Stage:      StageSecurity,
	}
}

// seed copies caller-supplied history into a session with no messages.
func (p *Pipeline) seed(ctx context.Context, sessionID string, history []models.Message) error {
	if len(history) == 0 {
		return nil
	}
	_, err := p.Memory.Update(ctx, sessionID, func(s *models.Session) error {
		if len(s.Messages) > 0 {
			return nil
		}
		for _, m := range history {
			if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
				continue
			}
			if m.Timestamp.IsZero() {
				m.Timestamp = s.LastActivity
			}
			m.Meta = nil
			s.Messages = append(s.Messages, m)
		}
		return nil
	})
	return err
}

func (p *Pipeline) faultStage(ctx context.Context, log *slog.Logger, sessionID, text string) (Response, bool) {
	var out fault.Outcome
	var sentiment models.Sentiment
	var lead int
	handled, err := p.Memory.AdvanceFault(ctx, sessionID, func(s *models.Session) *models.FaultReport {
		known := fault.Fields{
			Name:  s.Attr(models.AttrName),
			Email: s.Attr(models.AttrEmail),
			Phone: s.Attr(models.AttrPhone),
		}
		out = p.Faults.Handle(ctx, s.OpenFault, sessionID, text, known)
		sentiment = s.CurrentSentiment
		lead = s.LeadScore
		if !out.Handled {
			return nil
		}
		return out.Report
	})
	if err != nil {
		log.Warn("advance fault report", "err", err)
	}
	if !handled {
		return Response{}, false
	}

	r := out.Report
	p.Metrics.FaultReport(string(r.Urgency), string(r.Status))
	p.saveFault(ctx, log, r)
	log.Info("fault report updated", "id", r.ID, "urgency", r.Urgency, "category", r.Category, "status", r.Status)

	p.appendPair(ctx, log, sessionID, text, out.Reply, &models.MessageMeta{Intent: models.IntentFaultReport})

	if sentiment == "" {
		sentiment = models.SentimentNeutral
	}
	action := models.ActionNone
	switch {
	case !out.Complete:
		action = models.ActionCollectInfo
	case out.EscalateNow:
		action = models.ActionEscalate
	}
	return Response{
		SessionID:     sessionID,
		Reply:         out.Reply,
		Intent:        models.IntentFaultReport,
		Confidence:    FaultConfidence,
		Sentiment:     sentiment,
		LeadScore:     lead,
		Escalate:      out.EscalateNow,
		Action:        action,
		Urgency:       out.Urgency,
		FaultReportID: r.ID,
		Stage:         StageFault,
	}, true
}

func (p *Pipeline) fastPathStage(ctx context.Context, log *slog.Logger, sessionID, text string) (Response, bool) {
	reply, ok := p.FastPath.Match(text)
	if !ok {
		return Response{}, false
	}
	sess := p.appendPair(ctx, log, sessionID, text, reply.Text, &models.MessageMeta{
		Intent:    reply.Intent,
		Sentiment: models.SentimentNeutral,
		LeadScore: reply.LeadScore,
	})
	lead := reply.LeadScore
	if sess != nil {
		lead = sess.LeadScore
	}
	return Response{
		SessionID:        sessionID,
		Reply:            reply.Text,
		Intent:           reply.Intent,
		Confidence:       1,
		Sentiment:        models.SentimentNeutral,
		LeadScore:        lead,
		Action:           models.ActionNone,
		SuggestedReplies: compose.Suggested(reply.Intent, lead),
		Stage:            StageFastPath,
	}, true
}

func (p *Pipeline) escalate(ctx context.Context, log *slog.Logger, reason models.EscalationReason, sess *models.Session, in escalation.Input, cls models.ClassificationResult) Response {
	packet := p.Escalation.BuildContext(reason, sess, in)
	p.Metrics.Escalation(string(reason))
	log.Info("escalating", "reason", reason, "priority", packet.Priority, "id", packet.ID)

	if p.Records != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		if err := p.Records.SaveEscalation(rctx, packet); err != nil {
			log.Error("save escalation", "id", packet.ID, "err", err)
		}
		cancel()
	}
	switch {
	case !packet.AutoEscalate:
		log.Info("escalation queued without notification", "id", packet.ID, "reason", reason)
	case p.Notifier != nil:
		p.Notifier.DispatchEscalation(ctx, packet)
	}

	reply := p.Escalation.Reply(reason, p.Company.Phone)
	sess, err := p.Memory.Update(ctx, sess.ID, func(s *models.Session) error {
		s.EscalationCount++
		s.Messages = append(s.Messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   reply,
			Timestamp: s.LastActivity,
		})
		return nil
	})
	lead := cls.LeadScore
	if err != nil {
		log.Warn("record escalation in session", "err", err)
	} else {
		lead = sess.LeadScore
	}

	return Response{
		SessionID:         packet.SessionID,
		Reply:             reply,
		Intent:            cls.Intent,
		Confidence:        cls.Confidence,
		Sentiment:         cls.Sentiment,
		LeadScore:         lead,
		Escalate:          true,
		Action:            models.ActionEscalate,
		EscalationSummary: packet.Summary,
		EscalationID:      packet.ID,
		Stage:             StageEscalation,
	}
}

func (p *Pipeline) composeStage(ctx context.Context, log *slog.Logger, text string, sess *models.Session, cls models.ClassificationResult) Response {
	res := p.Composer.Compose(ctx, compose.Request{Text: text, Classification: cls, Session: sess})
	if res.Cause != "" {
		p.Metrics.Fallback(res.Cause)
	}

	id := sess.ID
	if cls.ConversionReady {
		if _, err := p.Memory.RecordSignal(ctx, id, string(cls.Intent)); err != nil {
			log.Warn("record buying signal", "err", err)
		}
	}
	after, err := p.Memory.AppendMessage(ctx, id, models.Message{Role: models.RoleAssistant, Content: res.Reply})
	lead := max(sess.LeadScore, cls.LeadScore)
	if err != nil {
		log.Warn("append assistant message", "err", err)
	} else {
		lead = after.LeadScore
	}

	action := models.ActionNone
	if lead >= 4 && cls.Sentiment != models.SentimentAngry {
		action = models.ActionBookCall
	}
	return Response{
		SessionID:        id,
		Reply:            res.Reply,
		Intent:           cls.Intent,
		Confidence:       cls.Confidence,
		Sentiment:        cls.Sentiment,
		LeadScore:        lead,
		Action:           action,
		SuggestedReplies: compose.Suggested(cls.Intent, lead),
		Stage:            StageCompose,
	}
}

// appendPair logs the user message and the reply to it. It returns the
// session after both are stored, or nil when storing failed.
func (p *Pipeline) appendPair(ctx context.Context, log *slog.Logger, sessionID, text, reply string, meta *models.MessageMeta) *models.Session {
	if _, err := p.Memory.AppendMessage(ctx, sessionID, models.Message{Role: models.RoleUser, Content: text, Meta: meta}); err != nil {
		log.Warn("append user message", "err", err)
		return nil
	}
	s, err := p.Memory.AppendMessage(ctx, sessionID, models.Message{Role: models.RoleAssistant, Content: reply})
	if err != nil {
		log.Warn("append assistant message", "err", err)
		return nil
	}
	return s
}

func (p *Pipeline) saveFault(ctx context.Context, log *slog.Logger, r *models.FaultReport) {
	if p.Records == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := p.Records.SaveFaultReport(ctx, r); err != nil {
		log.Error("save fault report", "id", r.ID, "err", err)
	}
}
