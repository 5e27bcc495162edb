package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"conductor/agent"
	"conductor/common"
	"conductor/domain"
	"conductor/logger"
	"conductor/srv"
)

// State names the stages a turn moves through. States are logged, not
// persisted: the only durable suspension point is an approval ticket.
type State string

const (
	StateLoading          State = "loading"
	StateClassifying      State = "classifying"
	StateRouting          State = "routing"
	StateExecuting        State = "executing"
	StateAwaitingApproval State = "awaiting_approval"
	StateRetrying         State = "retrying"
	StatePersisting       State = "persisting"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Decision is the caller's verdict on a pending approval ticket.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Options are the engine tunables, normally derived from EngineConfig.
type Options struct {
	ContextWindow   int
	MaxAttempts     int
	ExecutorTimeout time.Duration
	RetryInterval   time.Duration
	RiskThreshold   agent.RiskLevel
	TicketTTL       time.Duration
}

func OptionsFromConfig(cfg common.EngineConfig) (Options, error) {
	threshold, err := agent.StringToRiskLevel(cfg.RiskThreshold)
	if err != nil {
		return Options{}, fmt.Errorf("invalid engine.risk_threshold: %w", err)
	}
	return Options{
		ContextWindow:   cfg.ContextWindow,
		MaxAttempts:     cfg.MaxAttempts,
		ExecutorTimeout: cfg.ExecutorTimeout,
		RetryInterval:   cfg.RetryInterval,
		RiskThreshold:   threshold,
		TicketTTL:       cfg.TicketTTL,
	}, nil
}

// Engine drives a user request through load, classify, route, execute, gate
// and persist. One turn per session at a time; concurrent submissions to the
// same session are rejected with ErrSessionBusy rather than queued.
type Engine struct {
	store      srv.Storage
	registry   *agent.Registry
	classifier Classifier
	gate       ApprovalGate
	retry      RetryPolicy
	opts       Options
	log        zerolog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

func NewEngine(store srv.Storage, registry *agent.Registry, classifier Classifier, gate ApprovalGate, opts Options) (*Engine, error) {
	// a routable intent without an executor is a deployment error
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Engine{
		store:      store,
		registry:   registry,
		classifier: classifier,
		gate:       gate,
		retry:      RetryPolicy{MaxAttempts: opts.MaxAttempts},
		opts:       opts,
		log:        logger.Get().With().Str("component", "engine").Logger(),
		active:     make(map[string]struct{}),
	}, nil
}

// Process runs one turn. It returns an error only for caller-addressable
// conditions (busy session, cancellation, unknown workspace); internal
// failures come back as a TurnResult with status failed so the turn outcome
// is always reportable.
func (e *Engine) Process(ctx context.Context, workspaceId, sessionId, requestText string) (domain.TurnResult, error) {
	if !e.acquire(sessionId) {
		return domain.TurnResult{}, ErrSessionBusy
	}
	defer e.release(sessionId)

	if err := ctx.Err(); err != nil {
		return domain.TurnResult{}, err
	}

	log := e.log.With().Str("workspace_id", workspaceId).Str("session_id", sessionId).Logger()

	// a pending ticket is a suspended turn, which also makes the session busy
	if _, err := e.store.GetPendingTicketForSession(ctx, sessionId); err == nil {
		return domain.TurnResult{}, ErrSessionBusy
	} else if !errors.Is(err, common.ErrNotFound) {
		return failed(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)), nil
	}

	log.Debug().Str("state", string(StateLoading)).Msg("turn started")
	snapshot, err := e.loadContext(ctx, workspaceId, sessionId, requestText)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return domain.TurnResult{}, err
		}
		return failed(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)), nil
	}
	if err := ctx.Err(); err != nil {
		// cancelled before any side effects; nothing to roll back
		return domain.TurnResult{}, err
	}

	intent := e.classifier.Classify(requestText, snapshot)
	if intent == domain.IntentUnknown {
		intent = domain.IntentChat
	}
	log.Debug().Str("state", string(StateClassifying)).Str("intent", string(intent)).Msg("intent resolved")

	executor, ok := e.registry.Get(intent)
	if !ok {
		return failed(fmt.Errorf("no executor registered for intent %q", intent)), nil
	}
	if err := ctx.Err(); err != nil {
		return domain.TurnResult{}, err
	}

	log.Debug().Str("state", string(StateExecuting)).Str("executor", string(executor.Tag())).Msg("executing")
	req := agent.Request{WorkspaceId: workspaceId, SessionId: sessionId, Text: requestText, Snapshot: snapshot}
	result, usedFallback, errTrail, err := e.execute(ctx, log, executor, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// abandoned mid-execution: discard any result, persist nothing
			return domain.TurnResult{}, ctxErr
		}
		return failed(err), nil
	}

	executorTag := string(executor.Tag())
	if usedFallback {
		executorTag = string(domain.IntentChat)
	}

	userMessage := e.newMessage(sessionId, domain.MessageRoleUser, requestText, domain.MessageMeta{Intent: intent})

	decision := e.gate.Evaluate(ProposedAction{
		Intent:      intent,
		RequestText: requestText,
		Content:     result.Content,
		Risk:        result.Risk,
		RiskNote:    result.RiskNote,
	})
	if decision.RequireApproval {
		ticket := domain.ApprovalTicket{
			Id:              "tkt_" + ksuid.New().String(),
			WorkspaceId:     workspaceId,
			SessionId:       sessionId,
			RequestText:     requestText,
			Intent:          intent,
			Executor:        executorTag,
			ProposedContent: result.Content,
			RiskNote:        decision.RiskNote,
			Status:          domain.TicketStatusPending,
			Created:         time.Now().UTC(),
		}
		if err := e.store.CreateTicket(ctx, ticket, userMessage); err != nil {
			return failed(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)), nil
		}
		log.Info().Str("state", string(StateAwaitingApproval)).Str("ticket_id", ticket.Id).Str("risk_note", decision.RiskNote).Msg("turn suspended for approval")
		return domain.TurnResult{Status: domain.TurnPending, TicketId: ticket.Id}, nil
	}

	log.Debug().Str("state", string(StatePersisting)).Msg("persisting turn")
	assistantMessage := e.newMessage(sessionId, domain.MessageRoleAssistant, result.Content, domain.MessageMeta{
		Intent:   intent,
		Executor: executorTag,
		Fallback: usedFallback,
		Errors:   errTrail,
	})
	if err := e.store.AppendTurn(ctx, sessionId, []domain.Message{userMessage, assistantMessage}); err != nil {
		return failed(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)), nil
	}

	log.Info().Str("state", string(StateDone)).Str("intent", string(intent)).Bool("fallback", usedFallback).Msg("turn complete")
	return domain.TurnResult{Status: domain.TurnDone, Message: &assistantMessage}, nil
}

// Resume settles a pending approval ticket. Approval persists the ticket's
// already-computed proposed content; the executor is never re-run. Resuming
// an already-settled ticket returns the original outcome unchanged.
func (e *Engine) Resume(ctx context.Context, ticketId string, decision Decision) (domain.TurnResult, error) {
	if decision != DecisionApproved && decision != DecisionRejected {
		return domain.TurnResult{}, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	ticket, err := e.store.GetTicket(ctx, ticketId)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return domain.TurnResult{}, err
		}
		return failed(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)), nil
	}

	if !e.acquire(ticket.SessionId) {
		return domain.TurnResult{}, ErrSessionBusy
	}
	defer e.release(ticket.SessionId)

	log := e.log.With().Str("session_id", ticket.SessionId).Str("ticket_id", ticket.Id).Logger()

	if ticket.Status != domain.TicketStatusPending {
		return e.settledResult(ctx, ticket), nil
	}

	if e.opts.TicketTTL > 0 && time.Since(ticket.Created) > e.opts.TicketTTL {
		return e.expireTicket(ctx, log, ticket), nil
	}

	var message domain.Message
	var status domain.TicketStatus
	switch decision {
	case DecisionApproved:
		status = domain.TicketStatusApproved
		message = e.newMessage(ticket.SessionId, domain.MessageRoleAssistant, ticket.ProposedContent, domain.MessageMeta{
			Intent:   ticket.Intent,
			Executor: ticket.Executor,
			Approval: string(domain.TicketStatusApproved),
		})
	case DecisionRejected:
		status = domain.TicketStatusRejected
		content := fmt.Sprintf("The proposed action was not approved and has been discarded. Nothing was executed.\n\nDiscarded proposal:\n%s", ticket.ProposedContent)
		message = e.newMessage(ticket.SessionId, domain.MessageRoleAssistant, content, domain.MessageMeta{
			Intent:   ticket.Intent,
			Executor: ticket.Executor,
			Approval: string(domain.TicketStatusRejected),
		})
	}

	resolved, err := e.store.ResolveTicket(ctx, ticket.Id, status, message)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyResolved) {
			// lost the race to another resume; report the prior outcome
			return e.settledResult(ctx, resolved), nil
		}
		return failed(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)), nil
	}

	log.Info().Str("state", string(StateDone)).Str("decision", string(decision)).Msg("ticket resolved")
	return domain.TurnResult{Status: domain.TurnDone, Message: &message, TicketId: ticket.Id}, nil
}

// settledResult reconstructs the outcome of an already-resolved ticket so a
// duplicate resume gets the same answer without any new writes.
func (e *Engine) settledResult(ctx context.Context, ticket domain.ApprovalTicket) domain.TurnResult {
	switch ticket.Status {
	case domain.TicketStatusExpired:
		return domain.TurnResult{Status: domain.TurnFailed, TicketId: ticket.Id, Error: "approval ticket expired"}
	case domain.TicketStatusApproved, domain.TicketStatusRejected:
		if ticket.ResultMessageId == "" {
			return domain.TurnResult{Status: domain.TurnFailed, TicketId: ticket.Id, Error: "resolved ticket has no result message"}
		}
		message, err := e.store.GetMessage(ctx, ticket.SessionId, ticket.ResultMessageId)
		if err != nil {
			return failed(fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
		}
		return domain.TurnResult{Status: domain.TurnDone, Message: &message, TicketId: ticket.Id}
	default:
		return domain.TurnResult{Status: domain.TurnFailed, TicketId: ticket.Id, Error: fmt.Sprintf("unexpected ticket status %q", ticket.Status)}
	}
}

func (e *Engine) expireTicket(ctx context.Context, log zerolog.Logger, ticket domain.ApprovalTicket) domain.TurnResult {
	notice := e.newMessage(ticket.SessionId, domain.MessageRoleSystem,
		fmt.Sprintf("The approval request for %q expired before it was resolved. Submit the request again if it is still needed.", ticket.RequestText),
		domain.MessageMeta{Intent: ticket.Intent, Approval: string(domain.TicketStatusExpired)})

	resolved, err := e.store.ResolveTicket(ctx, ticket.Id, domain.TicketStatusExpired, notice)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyResolved) {
			return e.settledResult(ctx, resolved)
		}
		return failed(fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	}

	log.Warn().Str("state", string(StateFailed)).Msg("approval ticket expired")
	return domain.TurnResult{Status: domain.TurnFailed, TicketId: ticket.Id, Error: "approval ticket expired"}
}

// execute runs the executor with the retry/fallback policy applied. The
// returned error trail records every failed attempt for the turn's metadata.
func (e *Engine) execute(ctx context.Context, log zerolog.Logger, executor agent.Executor, req agent.Request) (agent.Result, bool, []string, error) {
	wait := e.retry.NewBackOff(e.opts.RetryInterval)
	var trail []string

	for attempt := 1; ; attempt++ {
		result, err := e.runExecutor(ctx, executor, req)
		if err == nil {
			return result, false, trail, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return agent.Result{}, false, trail, ctxErr
		}

		kind := agent.ClassifyError(err)
		trail = append(trail, fmt.Sprintf("attempt %d (%s): %v", attempt, kind, err))
		decision := e.retry.Decide(attempt, kind)
		log.Warn().Err(err).
			Int("attempt", attempt).
			Str("failure_kind", string(kind)).
			Str("decision", decision.String()).
			Str("state", string(StateRetrying)).
			Msg("executor attempt failed")

		switch decision {
		case RetrySame:
			if err := sleepBackoff(ctx, wait); err != nil {
				return agent.Result{}, false, trail, err
			}
		case FallbackExecutor:
			result, err := e.fallback(ctx, executor.Tag(), req)
			if err != nil {
				return agent.Result{}, false, trail, err
			}
			return result, true, trail, nil
		case GiveUp:
			return agent.Result{}, false, trail, err
		}
	}
}

// fallback produces a degraded chat response for the original request. If
// even the chat executor fails, a static apology keeps the turn terminal in
// done rather than failed.
func (e *Engine) fallback(ctx context.Context, failedTag domain.Intent, req agent.Request) (agent.Result, error) {
	if chatExecutor, ok := e.registry.Get(domain.IntentChat); ok && failedTag != domain.IntentChat {
		if result, err := e.runExecutor(ctx, chatExecutor, req); err == nil {
			result.Risk = agent.RiskLow
			result.RiskNote = ""
			return result, nil
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			return agent.Result{}, ctxErr
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return agent.Result{}, ctxErr
	}
	return agent.Result{
		Content: fmt.Sprintf("I wasn't able to fully handle your request (%q) right now. Please try again in a moment.", req.Text),
		Risk:    agent.RiskLow,
	}, nil
}

func (e *Engine) runExecutor(ctx context.Context, executor agent.Executor, req agent.Request) (agent.Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if e.opts.ExecutorTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.opts.ExecutorTimeout)
		defer cancel()
	}

	result, err := executor.Run(runCtx, req)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return agent.Result{}, agent.Transient("executor timed out", err)
	}
	return result, err
}

// loadContext resolves the workspace and session, creating the session on
// first use, then loads the bounded snapshot.
func (e *Engine) loadContext(ctx context.Context, workspaceId, sessionId, requestText string) (domain.ContextSnapshot, error) {
	if _, err := e.store.GetWorkspace(ctx, workspaceId); err != nil {
		return domain.ContextSnapshot{}, err
	}

	if _, err := e.store.GetSession(ctx, workspaceId, sessionId); err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return domain.ContextSnapshot{}, err
		}
		// The id may already belong to another workspace. Never adopt it:
		// creating here would hand this workspace the other session's
		// history. Report not-found without revealing the session exists.
		if _, err := e.store.GetSessionById(ctx, sessionId); err == nil {
			return domain.ContextSnapshot{}, common.ErrNotFound
		} else if !errors.Is(err, common.ErrNotFound) {
			return domain.ContextSnapshot{}, err
		}
		now := time.Now().UTC()
		session := domain.Session{
			Id:          sessionId,
			WorkspaceId: workspaceId,
			Name:        sessionNameFromRequest(requestText),
			Created:     now,
			Updated:     now,
		}
		if err := e.store.PersistSession(ctx, session); err != nil {
			return domain.ContextSnapshot{}, err
		}
	}

	return e.store.LoadContext(ctx, workspaceId, sessionId, e.opts.ContextWindow)
}

func (e *Engine) newMessage(sessionId string, role domain.MessageRole, content string, meta domain.MessageMeta) domain.Message {
	return domain.Message{
		Id:        "msg_" + ksuid.New().String(),
		SessionId: sessionId,
		Role:      role,
		Content:   content,
		Meta:      meta,
		Created:   time.Now().UTC(),
	}
}

func (e *Engine) acquire(sessionId string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[sessionId]; busy {
		return false
	}
	e.active[sessionId] = struct{}{}
	return true
}

func (e *Engine) release(sessionId string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, sessionId)
}

func failed(err error) domain.TurnResult {
	return domain.TurnResult{Status: domain.TurnFailed, Error: err.Error()}
}

func sleepBackoff(ctx context.Context, b backoff.BackOff) error {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sessionNameFromRequest derives a default session name from the first
// request, truncating on a rune boundary so multi-byte text stays valid.
func sessionNameFromRequest(requestText string) string {
	runes := []rune(requestText)
	if len(runes) > 40 {
		return string(runes[:40]) + "..."
	}
	return requestText
}
