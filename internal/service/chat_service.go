package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voxline/livechat-service/internal/domain"
	"github.com/voxline/livechat-service/internal/events"
	"github.com/voxline/livechat-service/internal/ledger"
	"github.com/voxline/livechat-service/internal/observability"
	"github.com/voxline/livechat-service/internal/repository"
	util "github.com/voxline/livechat-service/pkg/util"
)

// Actor identifies who triggered a lifecycle event.
type Actor struct {
	Type domain.SenderType
	ID   *string
}

// SystemActor is used for internally triggered transitions.
func SystemActor() Actor {
	return Actor{Type: domain.SenderTypeSystem}
}

// UserActor builds a requester actor.
func UserActor(id string) Actor {
	return Actor{Type: domain.SenderTypeUser, ID: &id}
}

// OperatorActor builds an operator actor.
func OperatorActor(id string) Actor {
	return Actor{Type: domain.SenderTypeOperator, ID: &id}
}

// SessionCreateInput describes session creation payload.
type SessionCreateInput struct {
	Subject  string
	Priority domain.SessionPriority
}

// ChatService is the lifecycle coordinator: it reacts to external events
// (session opened/closed/deleted, operator status change, message appended)
// and drives the session state machine and the capacity ledger together so
// the two never disagree. Every handler is safe to re-invoke; at-least-once
// event delivery is the expected recovery mechanism.
type ChatService struct {
	sessions  repository.SessionRepository
	operators repository.OperatorRepository
	messages  repository.MessageRepository
	history   repository.SessionHistoryRepository
	ledger    *ledger.Ledger
	router    *Router
	dispatch  events.Dispatcher
	locks     *util.KeyedMutex
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// ChatDependencies bundles collaborators for the coordinator.
type ChatDependencies struct {
	SessionRepo  repository.SessionRepository
	OperatorRepo repository.OperatorRepository
	MessageRepo  repository.MessageRepository
	HistoryRepo  repository.SessionHistoryRepository
	Ledger       *ledger.Ledger
	Router       *Router
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// NewChatService constructs the coordinator.
func NewChatService(deps ChatDependencies) *ChatService {
	return &ChatService{
		sessions:  deps.SessionRepo,
		operators: deps.OperatorRepo,
		messages:  deps.MessageRepo,
		history:   deps.HistoryRepo,
		ledger:    deps.Ledger,
		router:    deps.Router,
		dispatch:  deps.Dispatcher,
		locks:     util.NewKeyedMutex(),
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// OpenSession creates an OPEN session and immediately offers it to the
// routing pass: one AssignNext per assignable operator, least loaded first.
// If no operator has spare capacity the session stays OPEN in the backlog.
func (s *ChatService) OpenSession(ctx context.Context, requesterID string, input SessionCreateInput) (*domain.Session, error) {
	priority := input.Priority
	if priority == "" {
		priority = domain.SessionPriorityNormal
	}
	if !priority.Valid() {
		return nil, util.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	sess := &domain.Session{
		ExternalKey: generateSessionKey(),
		RequesterID: requesterID,
		Subject:     strings.TrimSpace(input.Subject),
		Status:      domain.SessionStatusOpen,
		Priority:    priority,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, util.MapError(err)
	}
	s.recordStatusChange(ctx, UserActor(requesterID), sess.ID, "", domain.SessionStatusOpen)
	s.publish(ctx, events.Event{
		Type:      events.EventSessionOpened,
		SessionID: sess.ID,
		Actor:     actorMeta(UserActor(requesterID)),
		Payload: events.SessionOpenedPayload{
			RequesterID: requesterID,
			Subject:     sess.Subject,
			Priority:    sess.Priority,
		},
	})

	s.routeBacklog(ctx, sess.ID)

	// Re-read: the routing pass may have assigned this session already.
	current, err := s.sessions.GetByID(ctx, sess.ID)
	if err != nil {
		return sess, nil
	}
	return current, nil
}

// routeBacklog runs one AssignNext per assignable operator, ascending load,
// stopping early once the given session has left OPEN.
func (s *ChatService) routeBacklog(ctx context.Context, watchSessionID string) {
	candidates, err := s.operators.ListAssignable(ctx)
	if err != nil {
		s.logger.Warn("list assignable operators", zap.Error(err))
		return
	}
	for i := range candidates {
		op := &candidates[i]
		s.locks.Lock(operatorKey(op.ID))
		assigned, err := s.router.AssignNext(ctx, op)
		s.locks.Unlock(operatorKey(op.ID))
		if err != nil {
			s.logger.Warn("assign next", zap.String("operator_id", op.ID), zap.Error(err))
			continue
		}
		if assigned == nil {
			continue
		}
		if watchSessionID != "" && assigned.ID == watchSessionID {
			return
		}
	}
}

// CloseSession terminates a session. For ACTIVE sessions capacity is released
// before the terminal transition so the routing pass triggered by the same
// event already sees the freed slot. Closing an already-CLOSED session is an
// idempotent no-op.
func (s *ChatService) CloseSession(ctx context.Context, sessionID string, actor Actor) (*domain.Session, error) {
	sess, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.authorizeSessionActor(sess, actor); err != nil {
		return nil, err
	}

	switch sess.Status {
	case domain.SessionStatusClosed:
		return sess, nil

	case domain.SessionStatusActive:
		operatorID := *sess.OperatorID
		if err := s.ledger.Release(ctx, operatorID); err != nil {
			return nil, err
		}
		if err := s.terminate(ctx, sess, domain.SessionStatusActive, actor, "closed"); err != nil {
			return nil, err
		}
		s.drainOperator(ctx, operatorID, 1)
		return sess, nil

	default: // OPEN, never assigned: no ledger interaction.
		if err := s.terminate(ctx, sess, domain.SessionStatusOpen, actor, "abandoned"); err != nil {
			return nil, err
		}
		return sess, nil
	}
}

// DeleteSession removes a session record entirely. An ACTIVE session releases
// its operator slot first; deleting an already-CLOSED session releases
// nothing. Child rows (messages, history, rating) go with the FK cascade.
func (s *ChatService) DeleteSession(ctx context.Context, sessionID string) error {
	sess, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	wasActive := sess.Status == domain.SessionStatusActive
	if wasActive {
		operatorID := *sess.OperatorID
		if err := s.ledger.Release(ctx, operatorID); err != nil {
			return err
		}
		if err := sess.TransitionTo(domain.SessionStatusClosed, s.now()); err != nil {
			return util.NewInvalidTransition(string(sess.Status), string(domain.SessionStatusClosed))
		}
		if _, err := s.sessions.UpdateStatus(ctx, sess, domain.SessionStatusActive); err != nil {
			return util.MapError(err)
		}
		defer s.drainOperator(ctx, operatorID, 1)
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("session", map[string]any{"session_id": sessionID})
		}
		return util.MapError(err)
	}
	s.publish(ctx, events.Event{
		Type:      events.EventSessionDeleted,
		SessionID: sessionID,
		Actor:     actorMeta(SystemActor()),
		Payload:   events.SessionDeletedPayload{WasActive: wasActive},
	})
	return nil
}

// SetOperatorStatus applies an operator status change. Going OFFLINE is a
// single logical unit: every session the operator still holds is released and
// closed before the status is written. Re-running the whole handler after an
// interruption is safe; sessions already CLOSED are skipped and the ledger
// release floors at zero.
func (s *ChatService) SetOperatorStatus(ctx context.Context, operatorID string, status domain.OperatorStatus) error {
	switch status {
	case domain.OperatorStatusOnline, domain.OperatorStatusBusy, domain.OperatorStatusOffline:
	default:
		return util.NewValidationError("unknown operator status", map[string]any{"status": status})
	}

	s.locks.Lock(operatorKey(operatorID))
	defer s.locks.Unlock(operatorKey(operatorID))

	op, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("operator", map[string]any{"operator_id": operatorID})
		}
		return util.MapError(err)
	}
	oldStatus := op.Status

	closed := 0
	if status == domain.OperatorStatusOffline {
		closed, err = s.closeAllActive(ctx, operatorID)
		if err != nil {
			return err
		}
	}

	if err := s.ledger.SetStatus(ctx, operatorID, status); err != nil {
		return err
	}
	s.publish(ctx, events.Event{
		Type:       events.EventOperatorStatusChanged,
		OperatorID: operatorID,
		Actor:      actorMeta(OperatorActor(operatorID)),
		Payload: events.OperatorStatusChangedPayload{
			OldStatus:      oldStatus,
			NewStatus:      status,
			SessionsClosed: closed,
		},
	})
	s.logger.Info("operator status changed",
		zap.String("operator_id", operatorID),
		zap.String("old", string(oldStatus)),
		zap.String("new", string(status)),
		zap.Int("sessions_closed", closed))

	// An operator coming online frees capacity for the whole backlog.
	if status == domain.OperatorStatusOnline {
		current, err := s.operators.GetByID(ctx, operatorID)
		if err != nil {
			return util.MapError(err)
		}
		s.drainLocked(ctx, current, current.MaxSessions-current.CurrentLoad)
	}
	return nil
}

// closeAllActive releases and closes each ACTIVE session held by the
// operator. The caller holds the operator lock.
func (s *ChatService) closeAllActive(ctx context.Context, operatorID string) (int, error) {
	active, err := s.sessions.ListActiveByOperator(ctx, operatorID)
	if err != nil {
		return 0, util.MapError(err)
	}
	closed := 0
	for i := range active {
		sess := &active[i]
		s.locks.Lock(sessionKey(sess.ID))
		err := s.forceClose(ctx, sess.ID, operatorID)
		s.locks.Unlock(sessionKey(sess.ID))
		if err != nil {
			return closed, err
		}
		closed++
		s.metrics.RecordForcedClose()
	}
	return closed, nil
}

// forceClose re-reads the session under its lock; a session that raced to
// CLOSED (or was reassigned) in the meantime is left alone.
func (s *ChatService) forceClose(ctx context.Context, sessionID, operatorID string) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return util.MapError(err)
	}
	if sess.Status != domain.SessionStatusActive || sess.OperatorID == nil || *sess.OperatorID != operatorID {
		return nil
	}
	if err := s.ledger.Release(ctx, operatorID); err != nil {
		return err
	}
	return s.terminate(ctx, sess, domain.SessionStatusActive, SystemActor(), "operator_offline")
}

// AppendMessage appends one immutable message and advances the session's
// updated_at. User and operator senders are fenced out of CLOSED sessions;
// system notices are always allowed.
func (s *ChatService) AppendMessage(ctx context.Context, sessionID string, actor Actor, body string) (*domain.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, util.NewValidationError("body required", nil)
	}

	s.locks.Lock(sessionKey(sessionID))
	defer s.locks.Unlock(sessionKey(sessionID))

	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeSessionActor(sess, actor); err != nil {
		return nil, err
	}
	if sess.Status == domain.SessionStatusClosed && actor.Type != domain.SenderTypeSystem {
		return nil, util.NewInvalidState("session is closed", map[string]any{"session_id": sessionID})
	}

	msg := &domain.ChatMessage{
		SessionID:  sess.ID,
		SenderType: actor.Type,
		SenderID:   actor.ID,
		Body:       body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, util.MapError(err)
	}
	if err := s.sessions.Touch(ctx, sess.ID); err != nil {
		return nil, util.MapError(err)
	}
	s.publish(ctx, events.Event{
		Type:      events.EventSessionMessageAdded,
		SessionID: sess.ID,
		Actor:     actorMeta(actor),
		Payload: events.SessionMessageAddedPayload{
			MessageID:   msg.ID,
			SenderType:  msg.SenderType,
			SenderID:    msg.SenderID,
			BodyPreview: stringPreview(body, 120),
		},
	})
	return msg, nil
}

// GetSessionForUser fetches a session with its thread, ensuring ownership.
func (s *ChatService) GetSessionForUser(ctx context.Context, userID, sessionID string) (*domain.Session, []domain.ChatMessage, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.RequesterID != userID {
		return nil, nil, util.NewForbidden("access denied")
	}
	msgs, err := s.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, util.MapError(err)
	}
	return sess, msgs, nil
}

// GetSessionForOperator fetches a session with its thread for the assigned
// operator.
func (s *ChatService) GetSessionForOperator(ctx context.Context, operatorID, sessionID string) (*domain.Session, []domain.ChatMessage, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.OperatorID == nil || *sess.OperatorID != operatorID {
		return nil, nil, util.NewForbidden("access denied")
	}
	msgs, err := s.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, util.MapError(err)
	}
	return sess, msgs, nil
}

// ListUserSessions returns sessions opened by the requester.
func (s *ChatService) ListUserSessions(ctx context.Context, userID string, statuses []domain.SessionStatus, limit, offset int) ([]domain.Session, error) {
	result, err := s.sessions.ListWithFilter(ctx, repository.SessionFilter{
		RequesterID: &userID,
		Statuses:    statuses,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, util.MapError(err)
	}
	return result, nil
}

// ListOperatorSessions returns sessions assigned to the operator.
func (s *ChatService) ListOperatorSessions(ctx context.Context, operatorID string, statuses []domain.SessionStatus, limit, offset int) ([]domain.Session, error) {
	result, err := s.sessions.ListWithFilter(ctx, repository.SessionFilter{
		OperatorID: &operatorID,
		Statuses:   statuses,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, util.MapError(err)
	}
	return result, nil
}

// ListSessionHistory returns audit entries for a session.
func (s *ChatService) ListSessionHistory(ctx context.Context, sessionID string, limit, offset int) ([]domain.SessionHistory, error) {
	if s.history == nil {
		return []domain.SessionHistory{}, nil
	}
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListBySession(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, util.MapError(err)
	}
	return entries, nil
}

// terminate applies the terminal transition with the guard on the previously
// observed status, then records history, appends a system notice and
// publishes the closed event.
func (s *ChatService) terminate(ctx context.Context, sess *domain.Session, prev domain.SessionStatus, actor Actor, reason string) error {
	if err := sess.TransitionTo(domain.SessionStatusClosed, s.now()); err != nil {
		return util.NewInvalidTransition(string(prev), string(domain.SessionStatusClosed))
	}
	applied, err := s.sessions.UpdateStatus(ctx, sess, prev)
	if err != nil {
		return util.MapError(err)
	}
	if !applied {
		// Someone else terminated first; nothing left to do.
		return nil
	}
	s.recordStatusChange(ctx, actor, sess.ID, prev, domain.SessionStatusClosed)
	s.appendSystemNotice(ctx, sess.ID, "session closed: "+reason)
	s.publish(ctx, events.Event{
		Type:      events.EventSessionClosed,
		SessionID: sess.ID,
		Actor:     actorMeta(actor),
		Payload: events.SessionClosedPayload{
			OperatorID: sess.OperatorID,
			Reason:     reason,
		},
	})
	return nil
}

// drainOperator fetches a fresh operator snapshot and runs up to n routing
// passes for its freed slots.
func (s *ChatService) drainOperator(ctx context.Context, operatorID string, n int) {
	op, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		return
	}
	s.drainLocked(ctx, op, n)
}

func (s *ChatService) drainLocked(ctx context.Context, op *domain.Operator, n int) {
	for i := 0; i < n; i++ {
		assigned, err := s.router.AssignNext(ctx, op)
		if err != nil {
			s.logger.Warn("assign next", zap.String("operator_id", op.ID), zap.Error(err))
			return
		}
		if assigned == nil {
			return
		}
	}
}

// lockSession acquires the operator lock (when assigned) before the session
// lock, re-reading the session until the locked pair is consistent.
func (s *ChatService) lockSession(ctx context.Context, sessionID string) (*domain.Session, func(), error) {
	for {
		sess, err := s.getSession(ctx, sessionID)
		if err != nil {
			return nil, nil, err
		}

		var opID string
		if sess.OperatorID != nil {
			opID = *sess.OperatorID
			s.locks.Lock(operatorKey(opID))
		}
		s.locks.Lock(sessionKey(sessionID))

		current, err := s.getSession(ctx, sessionID)
		if err == nil && sameOperator(current.OperatorID, sess.OperatorID) {
			unlock := func() {
				s.locks.Unlock(sessionKey(sessionID))
				if opID != "" {
					s.locks.Unlock(operatorKey(opID))
				}
			}
			return current, unlock, nil
		}

		s.locks.Unlock(sessionKey(sessionID))
		if opID != "" {
			s.locks.Unlock(operatorKey(opID))
		}
		if err != nil {
			return nil, nil, err
		}
		// Operator changed between read and lock; retry with the new pair.
	}
}

func (s *ChatService) getSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("session", map[string]any{"session_id": sessionID})
		}
		return nil, util.MapError(err)
	}
	return sess, nil
}

// authorizeSessionActor checks that the actor may touch the session: the
// requester, the assigned operator, or the system.
func (s *ChatService) authorizeSessionActor(sess *domain.Session, actor Actor) error {
	switch actor.Type {
	case domain.SenderTypeSystem:
		return nil
	case domain.SenderTypeUser:
		if actor.ID == nil || sess.RequesterID != *actor.ID {
			return util.NewForbidden("access denied")
		}
	case domain.SenderTypeOperator:
		if actor.ID == nil || sess.OperatorID == nil || *sess.OperatorID != *actor.ID {
			return util.NewForbidden("access denied")
		}
	default:
		return util.NewForbidden("unknown actor")
	}
	return nil
}

func (s *ChatService) recordStatusChange(ctx context.Context, actor Actor, sessionID string, oldStatus, newStatus domain.SessionStatus) {
	if s.history == nil {
		return
	}
	entry := &domain.SessionHistory{
		SessionID:     sessionID,
		ChangedByType: actor.Type,
		ChangedByID:   actor.ID,
		ChangeType:    domain.ChangeTypeStatus,
		OldValue:      map[string]any{"status": oldStatus},
		NewValue:      map[string]any{"status": newStatus},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record status history", zap.Error(err))
	}
}

func (s *ChatService) appendSystemNotice(ctx context.Context, sessionID, body string) {
	msg := &domain.ChatMessage{
		SessionID:  sessionID,
		SenderType: domain.SenderTypeSystem,
		Body:       body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.logger.Warn("append system notice", zap.Error(err))
	}
}

func (s *ChatService) publish(ctx context.Context, event events.Event) {
	if s.dispatch == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatch.Publish(ctx, event)
}

func actorMeta(actor Actor) events.Actor {
	meta := events.Actor{Type: actor.Type}
	switch actor.Type {
	case domain.SenderTypeUser:
		meta.UserID = actor.ID
	case domain.SenderTypeOperator:
		meta.OperatorID = actor.ID
	}
	return meta
}

func operatorKey(id string) string { return "op:" + id }

func sessionKey(id string) string { return "sess:" + id }

func sameOperator(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func generateSessionKey() string {
	return "CHT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
