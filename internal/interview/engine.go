package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coachly/interviewd/internal/activity"
	"github.com/coachly/interviewd/internal/observability"
	"github.com/coachly/interviewd/internal/session"
	"github.com/coachly/interviewd/internal/store"
)

const commandQueueDepth = 16

type commandKind int

const (
	cmdInit commandKind = iota
	cmdSubmit
	cmdEnd
	cmdRefreshQuestion
)

type command struct {
	kind  commandKind
	req   AnswerRequest
	email string
}

// instance is one resident session state machine. A single runner
// goroutine drains the command queue, so transitions for a session never
// interleave; snapshots read a committed copy under the instance lock.
type instance struct {
	id       string
	commands chan command

	mu     sync.RWMutex
	sess   session.Session
	failed error
	closed bool
}

func (i *instance) snapshot() (session.Snapshot, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.failed != nil {
		return session.Snapshot{}, i.failed
	}
	return i.sess.Snapshot(), nil
}

func (i *instance) clone() session.Session {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.sess.Clone()
}

func (i *instance) commit(sess session.Session) {
	i.mu.Lock()
	i.sess = sess
	i.mu.Unlock()
}

// send enqueues a command without blocking. A full queue reports false;
// the caller surfaces that as backpressure.
func (i *instance) send(cmd command) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false
	}
	select {
	case i.commands <- cmd:
		return true
	default:
		return false
	}
}

func (i *instance) close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	close(i.commands)
}

// Engine is the durable orchestrator strategy: commands are asynchronous
// signals to a resident per-session state machine, and callers observe
// their effect through snapshot polling with sequence correlation. A
// session evicted by a restart is rehydrated from the store on first
// touch.
type Engine struct {
	machine *machine
	store   store.Store
	log     *zap.Logger
	metrics *observability.Metrics
	poll    PollConfig

	mu          sync.RWMutex
	instances   map[string]*instance
	subscribers map[string]map[int]chan Event
	nextSubID   int
	closed      bool
}

func NewEngine(acts activity.Activities, st store.Store, poll PollConfig, log *zap.Logger, metrics *observability.Metrics) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	poll.applyDefaults()
	return &Engine{
		machine:     newMachine(acts, log),
		store:       st,
		log:         log,
		metrics:     metrics,
		poll:        poll,
		instances:   make(map[string]*instance),
		subscribers: make(map[string]map[int]chan Event),
	}
}

func (e *Engine) StartSession(ctx context.Context, role, seniority string) (StartResult, error) {
	sess := session.Session{
		ID:        uuid.NewString(),
		Role:      role,
		Seniority: seniority,
		CreatedAt: time.Now().UTC(),
	}

	inst, err := e.register(sess)
	if err != nil {
		return StartResult{}, err
	}
	if !inst.send(command{kind: cmdInit}) {
		return StartResult{}, ErrNotReady
	}

	snap, err := awaitSequence(ctx, func(context.Context) (session.Snapshot, error) {
		return inst.snapshot()
	}, 0, e.poll, e.metrics)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{SessionID: sess.ID, Question: snap.CurrentQuestion}, nil
}

func (e *Engine) SubmitAnswer(ctx context.Context, sessionID string, req AnswerRequest) (AnswerResult, error) {
	inst, err := e.instanceFor(ctx, sessionID)
	if err != nil {
		return AnswerResult{}, err
	}

	snap, err := inst.snapshot()
	if err != nil {
		return AnswerResult{}, err
	}
	if snap.Status != session.StatusActive || snap.CurrentQuestion == "" {
		return AnswerResult{}, ErrNotAcceptingAnswers
	}
	seq0 := snap.Sequence

	if !inst.send(command{kind: cmdSubmit, req: req}) {
		return AnswerResult{}, ErrNotReady
	}

	snap, err = awaitSequence(ctx, func(context.Context) (session.Snapshot, error) {
		return inst.snapshot()
	}, seq0, e.poll, e.metrics)
	if err != nil {
		return AnswerResult{}, err
	}
	if snap.LastRecord == nil {
		return AnswerResult{}, ErrNotAcceptingAnswers
	}
	return AnswerResult{
		Record:       *snap.LastRecord,
		NextQuestion: snap.CurrentQuestion,
		Sequence:     snap.Sequence,
	}, nil
}

func (e *Engine) EndSession(ctx context.Context, sessionID, email string) (CompleteResult, error) {
	inst, err := e.instanceFor(ctx, sessionID)
	if err != nil {
		return CompleteResult{}, err
	}

	snap, err := inst.snapshot()
	if err != nil {
		return CompleteResult{}, err
	}
	if snap.Status == session.StatusCompleted {
		return CompleteResult{Summary: snap.Summary, Sequence: snap.Sequence}, nil
	}

	if !inst.send(command{kind: cmdEnd, email: email}) {
		return CompleteResult{}, ErrNotReady
	}

	snap, err = awaitSnapshot(ctx, func(context.Context) (session.Snapshot, error) {
		return inst.snapshot()
	}, func(s session.Snapshot) bool {
		return s.Status == session.StatusCompleted
	}, e.poll, e.metrics)
	if err != nil {
		return CompleteResult{}, err
	}
	return CompleteResult{Summary: snap.Summary, Sequence: snap.Sequence}, nil
}

func (e *Engine) Snapshot(ctx context.Context, sessionID string) (session.Snapshot, error) {
	inst, err := e.instanceFor(ctx, sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return inst.snapshot()
}

// Subscribe attaches a live event feed for one session. The returned
// cancel func is idempotent and closes the channel.
func (e *Engine) Subscribe(sessionID string) (<-chan Event, func()) {
	if sessionID == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 256)
	e.mu.Lock()
	e.nextSubID++
	id := e.nextSubID
	if _, ok := e.subscribers[sessionID]; !ok {
		e.subscribers[sessionID] = make(map[int]chan Event)
	}
	e.subscribers[sessionID][id] = ch
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.subscribers[sessionID]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(e.subscribers, sessionID)
		}
	}
}

// Close stops all resident instances. In-flight commands drain; new
// signals are rejected as not ready.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	instances := make([]*instance, 0, len(e.instances))
	for _, inst := range e.instances {
		instances = append(instances, inst)
	}
	e.mu.Unlock()

	for _, inst := range instances {
		inst.close()
	}
}

func (e *Engine) register(sess session.Session) (*instance, error) {
	inst := &instance{
		id:       sess.ID,
		commands: make(chan command, commandQueueDepth),
		sess:     sess,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("engine is shut down")
	}
	if existing, ok := e.instances[sess.ID]; ok {
		e.mu.Unlock()
		return existing, nil
	}
	e.instances[sess.ID] = inst
	e.mu.Unlock()

	go e.run(inst)
	return inst, nil
}

func (e *Engine) remove(sessionID string) {
	e.mu.Lock()
	inst, ok := e.instances[sessionID]
	delete(e.instances, sessionID)
	e.mu.Unlock()
	if ok {
		inst.close()
	}
}

// instanceFor resolves the resident instance, rehydrating from the store
// after an eviction or restart.
func (e *Engine) instanceFor(ctx context.Context, sessionID string) (*instance, error) {
	e.mu.RLock()
	inst, ok := e.instances[sessionID]
	e.mu.RUnlock()
	if ok {
		return inst, nil
	}

	row, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	answers, err := e.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers %s: %w", sessionID, err)
	}

	sess := session.Session{
		ID:          row.ID,
		Role:        row.Role,
		Seniority:   row.Seniority,
		Status:      row.Status,
		Answers:     answers,
		Summary:     row.Summary,
		CreatedAt:   row.CreatedAt,
		CompletedAt: row.CompletedAt,
		Sequence:    uint64(len(answers)) + 1,
	}
	if row.Status == session.StatusCompleted {
		sess.Sequence++
	}

	inst, err = e.register(sess)
	if err != nil {
		return nil, err
	}
	e.log.Info("session rehydrated",
		zap.String("session_id", sessionID),
		zap.String("status", string(sess.Status)),
		zap.Int("answers", len(answers)),
	)
	// The pending question does not survive eviction; regenerate it before
	// accepting answers again.
	if sess.Status == session.StatusActive {
		inst.send(command{kind: cmdRefreshQuestion})
	}
	return inst, nil
}

func (e *Engine) run(inst *instance) {
	for cmd := range inst.commands {
		// Signals are fire-and-forget: the sender's request context must
		// not cancel a transition already in flight.
		ctx := context.Background()
		switch cmd.kind {
		case cmdInit:
			e.handleInit(ctx, inst)
		case cmdSubmit:
			e.handleSubmit(ctx, inst, cmd.req)
		case cmdEnd:
			e.handleEnd(ctx, inst, cmd.email)
		case cmdRefreshQuestion:
			e.handleRefresh(ctx, inst)
		}
	}
}

func (e *Engine) handleInit(ctx context.Context, inst *instance) {
	working := inst.clone()
	err := e.store.CreateSession(ctx, store.SessionRow{
		ID:        working.ID,
		Role:      working.Role,
		Seniority: working.Seniority,
		Status:    session.StatusActive,
		CreatedAt: working.CreatedAt,
	})
	if err == nil {
		working, err = e.machine.initialize(ctx, working)
		if err != nil {
			// No partial state: a row without a first question must not
			// be observable or rehydratable.
			if delErr := e.store.DeleteSession(ctx, working.ID); delErr != nil {
				e.log.Warn("orphaned session row not cleaned up",
					zap.String("session_id", working.ID),
					zap.Error(delErr),
				)
			}
		}
	}
	if err != nil {
		e.log.Error("session initialization failed",
			zap.String("session_id", inst.id),
			zap.Error(err),
		)
		inst.mu.Lock()
		inst.failed = fmt.Errorf("session %s failed to initialize: %w", inst.id, err)
		inst.mu.Unlock()
		e.publish(inst.id, Event{
			Type:      EventActivityFailed,
			SessionID: inst.id,
			Detail:    err.Error(),
			At:        time.Now().UTC(),
		})
		e.remove(inst.id)
		return
	}

	inst.commit(working)
	if e.metrics != nil {
		e.metrics.ActiveSessions.Inc()
		e.metrics.SessionEvents.WithLabelValues(string(EventQuestionReady)).Inc()
	}
	e.log.Info("session started",
		zap.String("session_id", working.ID),
		zap.String("role", working.Role),
		zap.String("seniority", working.Seniority),
	)
	e.publish(inst.id, Event{
		Type:      EventQuestionReady,
		SessionID: inst.id,
		Question:  working.CurrentQuestion,
		Sequence:  working.Sequence,
		At:        time.Now().UTC(),
	})
}

func (e *Engine) handleSubmit(ctx context.Context, inst *instance, req AnswerRequest) {
	working, result, err := e.machine.submit(ctx, inst.clone(), req)
	if err != nil {
		e.log.Warn("answer transition aborted",
			zap.String("session_id", inst.id),
			zap.Error(err),
		)
		e.publish(inst.id, Event{
			Type:      EventActivityFailed,
			SessionID: inst.id,
			Detail:    err.Error(),
			At:        time.Now().UTC(),
		})
		return
	}

	inst.commit(working)
	if e.metrics != nil {
		e.metrics.SessionEvents.WithLabelValues(string(EventAnswerRecorded)).Inc()
	}
	e.publish(inst.id, Event{
		Type:      EventAnswerRecorded,
		SessionID: inst.id,
		Record:    &result.Record,
		Sequence:  result.Sequence,
		At:        time.Now().UTC(),
	})
	if result.NextQuestion != "" {
		e.publish(inst.id, Event{
			Type:      EventQuestionReady,
			SessionID: inst.id,
			Question:  result.NextQuestion,
			Sequence:  result.Sequence,
			At:        time.Now().UTC(),
		})
		return
	}
	// The answer is committed but the next question is missing; retry its
	// generation out of band without touching the sequence.
	inst.send(command{kind: cmdRefreshQuestion})
}

func (e *Engine) handleEnd(ctx context.Context, inst *instance, email string) {
	before := inst.clone()
	working, result, err := e.machine.complete(ctx, before, email)
	if err != nil {
		e.log.Error("completion transition aborted",
			zap.String("session_id", inst.id),
			zap.Error(err),
		)
		e.publish(inst.id, Event{
			Type:      EventActivityFailed,
			SessionID: inst.id,
			Detail:    err.Error(),
			At:        time.Now().UTC(),
		})
		return
	}
	if before.Status == session.StatusCompleted {
		return
	}

	inst.commit(working)
	if err := e.store.CompleteSession(ctx, inst.id, result.Summary, *working.CompletedAt); err != nil {
		e.log.Error("completed session not persisted",
			zap.String("session_id", inst.id),
			zap.Error(err),
		)
	}
	if e.metrics != nil {
		e.metrics.ActiveSessions.Dec()
		e.metrics.SessionEvents.WithLabelValues(string(EventCompleted)).Inc()
	}
	e.log.Info("session completed",
		zap.String("session_id", inst.id),
		zap.Int("answers", len(working.Answers)),
	)
	e.publish(inst.id, Event{
		Type:      EventCompleted,
		SessionID: inst.id,
		Summary:   result.Summary,
		Sequence:  result.Sequence,
		At:        time.Now().UTC(),
	})
}

func (e *Engine) handleRefresh(ctx context.Context, inst *instance) {
	working := inst.clone()
	if working.Status != session.StatusActive || working.CurrentQuestion != "" {
		return
	}

	key := activity.Key{SessionID: working.ID, Seq: working.Sequence}
	question, err := e.machine.acts.GenerateQuestion(ctx, key, working.Role, working.Seniority)
	if err != nil {
		e.log.Warn("question refresh failed, session has no pending question",
			zap.String("session_id", inst.id),
			zap.Error(err),
		)
		return
	}

	working.CurrentQuestion = question
	inst.commit(working)
	if e.metrics != nil {
		e.metrics.SessionEvents.WithLabelValues(string(EventQuestionReady)).Inc()
	}
	e.publish(inst.id, Event{
		Type:      EventQuestionReady,
		SessionID: inst.id,
		Question:  question,
		Sequence:  working.Sequence,
		At:        time.Now().UTC(),
	})
}

func (e *Engine) publish(sessionID string, evt Event) {
	// Sends happen under the read lock so an unsubscribe (which closes
	// the channel under the write lock) cannot race them. Slow consumers
	// drop events rather than stall the runner.
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subscribers[sessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
