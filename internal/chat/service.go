// Package chat orchestrates a single assistant turn for a session: it loads the session's
// permissions, fetches the user's financial record, filters it, asks the assistant and persists
// the exchange. Every read-modify-write of a session's state runs under that session's lock.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ent0n29/financeai/internal/assistant"
	"github.com/ent0n29/financeai/internal/conversation"
	"github.com/ent0n29/financeai/internal/finance"
	"github.com/ent0n29/financeai/internal/memory"
	"github.com/ent0n29/financeai/internal/observability"
	"github.com/ent0n29/financeai/internal/permissions"
	"github.com/ent0n29/financeai/internal/policy"
	"github.com/ent0n29/financeai/internal/reliability"
	"github.com/ent0n29/financeai/internal/session"
)

// Options configures a Service. Sessions, Store, Provider and Engine are required.
type Options struct {
	Sessions     *session.Manager
	Store        memory.Store
	Provider     finance.Provider
	Engine       *assistant.Engine
	Metrics      *observability.Metrics
	Logger       *slog.Logger
	Tracer       trace.Tracer
	HistoryLimit int
	Now          func() time.Time
}

type Service struct {
	sessions     *session.Manager
	store        memory.Store
	provider     finance.Provider
	engine       *assistant.Engine
	metrics      *observability.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	historyLimit int
	now          func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Sessions == nil || opts.Store == nil || opts.Provider == nil || opts.Engine == nil {
		return nil, errors.New("chat: sessions, store, provider and engine are required")
	}
	s := &Service{
		sessions:     opts.Sessions,
		store:        opts.Store,
		provider:     opts.Provider,
		engine:       opts.Engine,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		tracer:       opts.Tracer,
		historyLimit: opts.HistoryLimit,
		now:          opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/ent0n29/financeai/internal/chat")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Chat answers message for the session and appends the exchange to its history.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (string, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "chat.turn", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	resp, err := s.chat(ctx, sessionID, message)
	s.observe(observability.StageChatTotal, time.Since(started))

	outcome := "ok"
	switch {
	case err == nil && resp.Refused:
		outcome = "refused"
		span.SetAttributes(attribute.String("disclosure.refused", resp.Category))
	case err == nil:
	default:
		outcome = outcomeFor(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if s.metrics != nil {
		s.metrics.ChatRequests.WithLabelValues(outcome).Inc()
	}
	s.logger.Info("chat turn",
		"session_id", sessionID,
		"outcome", outcome,
		"message", policy.ForLog(message, 120),
		"latency_ms", time.Since(started).Milliseconds(),
	)
	return resp.Text, err
}

func (s *Service) chat(ctx context.Context, sessionID, message string) (assistant.Response, error) {
	unlock := s.sessions.Locks().Lock(sessionID)
	defer unlock()

	// Forget runs under this lock once a session ends; nothing may be saved after it.
	sess, err := s.sessions.GetActive(sessionID)
	if err != nil {
		return assistant.Response{}, err
	}

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return assistant.Response{}, fmt.Errorf("load session state: %w", err)
	}
	perms := permissions.GetOrInit(state.Permissions)

	fetchStarted := time.Now()
	record, err := s.provider.Fetch(ctx, sess.UserID)
	s.observe(observability.StageFetchRecord, time.Since(fetchStarted))
	if err != nil || len(record) == 0 {
		s.providerFailed(sessionID, err)
		return assistant.Response{}, ErrDependencyUnavailable
	}
	accessible := permissions.Filter(record, perms)

	query := strings.TrimSpace(message)
	if query == "" {
		return assistant.Response{}, invalid(MsgEmptyMessage)
	}

	respondStarted := time.Now()
	resp, err := s.engine.Respond(ctx, assistant.Request{
		History:    state.History,
		Accessible: accessible,
		Query:      query,
	})
	s.observe(observability.StageRespond, time.Since(respondStarted))
	if err != nil {
		return assistant.Response{}, fmt.Errorf("assistant respond: %w", err)
	}
	if resp.Refused && s.metrics != nil {
		s.metrics.DisclosureRefusals.WithLabelValues(resp.Category).Inc()
	}

	next := state.Clone()
	next.Permissions = perms
	next.History = state.History.Exchange(query, resp.Text, s.now()).Tail(s.historyLimit)
	next.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sessionID, next); err != nil {
		return assistant.Response{}, fmt.Errorf("save session state: %w", err)
	}
	_ = s.sessions.RecordTurn(sessionID)

	return resp, nil
}

// Permissions returns the session's permission set with every category present. A session
// that never stored a set sees the all-visible default; nothing is persisted.
func (s *Service) Permissions(ctx context.Context, sessionID string) (permissions.Set, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	return permissions.GetOrInit(state.Permissions), nil
}

// UpdatePermission sets one category's visibility. hasAccess is a pointer so that an absent
// field can be told apart from false.
func (s *Service) UpdatePermission(ctx context.Context, sessionID, category string, hasAccess *bool) (permissions.Set, error) {
	if strings.TrimSpace(category) == "" || hasAccess == nil {
		return nil, invalid(MsgMissingPermission)
	}
	return s.mutatePermissions(ctx, sessionID, func(current permissions.Set, now time.Time) (permissions.Set, []permissions.Change, error) {
		next, change, err := permissions.Update(current, category, *hasAccess, now)
		if err != nil {
			return nil, nil, invalid(MsgMissingPermission)
		}
		change.Source = "user"
		return next, []permissions.Change{change}, nil
	})
}

// ApplyPreset overwrites every category with the named preset's values.
func (s *Service) ApplyPreset(ctx context.Context, sessionID, presetID string) (permissions.Set, error) {
	preset, err := permissions.PresetByID(strings.TrimSpace(presetID))
	if err != nil {
		if errors.Is(err, permissions.ErrUnknownPreset) {
			return nil, invalid(MsgUnknownPreset)
		}
		return nil, err
	}
	return s.mutatePermissions(ctx, sessionID, func(current permissions.Set, now time.Time) (permissions.Set, []permissions.Change, error) {
		next, changes := permissions.ApplyPreset(current, preset, now)
		return next, changes, nil
	})
}

func (s *Service) mutatePermissions(
	ctx context.Context,
	sessionID string,
	apply func(current permissions.Set, now time.Time) (permissions.Set, []permissions.Change, error),
) (permissions.Set, error) {
	unlock := s.sessions.Locks().Lock(sessionID)
	defer unlock()
	if _, err := s.sessions.GetActive(sessionID); err != nil {
		return nil, err
	}

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	now := s.now()
	perms, changes, err := apply(state.Permissions, now)
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	next.Permissions = perms
	next.PermissionLog = append(next.PermissionLog, changes...)
	next.UpdatedAt = now.UTC()
	if err := s.store.Save(ctx, sessionID, next); err != nil {
		return nil, fmt.Errorf("save session state: %w", err)
	}
	_ = s.sessions.Touch(sessionID)

	for _, c := range changes {
		if s.metrics != nil {
			s.metrics.PermissionUpdates.WithLabelValues(string(c.Action)).Inc()
		}
		s.logger.Info("permission changed",
			"session_id", sessionID,
			"category", c.Category,
			"action", c.Action,
			"source", c.Source,
		)
	}
	return perms.Clone(), nil
}

// PermissionLog returns the session's permission changes, newest first.
func (s *Service) PermissionLog(ctx context.Context, sessionID string) ([]permissions.Change, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	out := make([]permissions.Change, 0, len(state.PermissionLog))
	for i := len(state.PermissionLog) - 1; i >= 0; i-- {
		out = append(out, state.PermissionLog[i])
	}
	return out, nil
}

// History returns the session's turns in the order they were exchanged.
func (s *Service) History(ctx context.Context, sessionID string) (conversation.History, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	if state.History == nil {
		return conversation.History{}, nil
	}
	return state.History, nil
}

// ClearHistory drops every turn and keeps the permission set.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) error {
	unlock := s.sessions.Locks().Lock(sessionID)
	defer unlock()
	if _, err := s.sessions.GetActive(sessionID); err != nil {
		return err
	}

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}
	if len(state.History) == 0 {
		return nil
	}
	next := state.Clone()
	next.History = conversation.History{}
	next.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sessionID, next); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

// Forget deletes everything stored for an ended session. It is installed as the session
// manager's expire hook.
func (s *Service) Forget(sess *session.Session) {
	if sess == nil {
		return
	}
	unlock := s.sessions.Locks().Lock(sess.ID)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, sess.ID); err != nil {
		s.logger.Warn("delete session state failed", "session_id", sess.ID, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("state_deleted").Inc()
	}
}

func (s *Service) observe(stage string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveStage(stage, d)
	}
}

func (s *Service) providerFailed(sessionID string, err error) {
	class := reliability.Classify(err)
	if s.metrics != nil {
		s.metrics.ProviderErrors.WithLabelValues("finance", class.Code).Inc()
	}
	s.logger.Warn("financial data fetch failed",
		"session_id", sessionID,
		"code", class.Code,
		"retryable", class.Retryable,
		"error", err,
	)
}

func outcomeFor(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrDependencyUnavailable):
		return "dependency_unavailable"
	case errors.Is(err, session.ErrNotFound):
		return "unknown_session"
	default:
		return "error"
	}
}
