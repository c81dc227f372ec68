// Package conversation routes inbound chat events through per-user multi-step
// flows. Flows, their states and the (state, event kind) handler table are
// declared up front; Build rejects inconsistent tables so that input can never
// be routed to a handler of an unrelated flow.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lojf/storebot/internal/metrics"
)

// Handler consumes one event in the session's current state. It may change
// s.Scratch; the session is persisted only if the handler succeeds.
type Handler[S any] func(ctx context.Context, s *Session[S], ev Event) (Step, error)

// PromptFunc renders the question of a state. notice is a retry hint or "".
type PromptFunc[S any] func(ctx context.Context, s *Session[S], notice string) error

// ActionFunc handles an event outside of any session.
type ActionFunc func(ctx context.Context, ev Event) error

type Matcher func(ev Event) bool

// GateFunc may force a flow on a user, e.g. registration for unapproved users.
// An empty Flow lets the event through.
type GateFunc func(ctx context.Context, ev Event) (Flow, error)

type CancelFunc func(ctx context.Context, ev Event, hadSession bool) error

var (
	ErrNotBuilt    = errors.New("conversation: machine not built")
	ErrForeignStep = errors.New("conversation: transition outside the active flow")
)

const maxChain = 8

type flowDef[S any] struct {
	states []State
	start  Handler[S]
}

type handlerKey struct {
	state State
	kind  EventKind
}

type trigger struct {
	flow  Flow
	match Matcher
}

type action struct {
	match Matcher
	run   ActionFunc
}

type Machine[S any] struct {
	store   Store[S]
	locker  Locker
	log     *zap.Logger
	metrics *metrics.Metrics

	flows     map[Flow]*flowDef[S]
	owner     map[State]Flow
	handlers  map[handlerKey]Handler[S]
	prompts   map[State]PromptFunc[S]
	triggers  []trigger
	actions   []action
	gate      GateFunc
	fallback  ActionFunc
	onCancel  CancelFunc
	onFailure ActionFunc
	isCancel  Matcher
	unmatched string

	errs  []error
	built bool
}

func New[S any](store Store[S], log *zap.Logger, m *metrics.Metrics) *Machine[S] {
	return &Machine[S]{
		store:    store,
		locker:   NewKeyedMutex(),
		log:      log.Named("conversation"),
		metrics:  m,
		flows:    make(map[Flow]*flowDef[S]),
		owner:    make(map[State]Flow),
		handlers: make(map[handlerKey]Handler[S]),
		prompts:  make(map[State]PromptFunc[S]),
		isCancel: DefaultCancel,
	}
}

// DefaultCancel matches /cancel and a "cancel" callback.
func DefaultCancel(ev Event) bool {
	switch ev.Kind {
	case Command:
		return ev.CommandName() == "/cancel"
	case Callback:
		return ev.Text == "cancel"
	}
	return false
}

func (m *Machine[S]) errorf(format string, args ...any) {
	m.errs = append(m.errs, fmt.Errorf("conversation: "+format, args...))
}

// WithLocker replaces the in-process per-user lock.
func (m *Machine[S]) WithLocker(l Locker) *Machine[S] {
	m.locker = l
	return m
}

// DefineFlow declares a flow and its states; the first state is the entry state.
func (m *Machine[S]) DefineFlow(f Flow, states ...State) *Machine[S] {
	if f == "" {
		m.errorf("empty flow name")
		return m
	}
	if _, dup := m.flows[f]; dup {
		m.errorf("flow %q defined twice", f)
		return m
	}
	if len(states) == 0 {
		m.errorf("flow %q has no states", f)
		return m
	}
	for _, s := range states {
		if other, taken := m.owner[s]; taken {
			m.errorf("state %q registered in flows %q and %q", s, other, f)
			continue
		}
		m.owner[s] = f
	}
	m.flows[f] = &flowDef[S]{states: states}
	return m
}

// Start sets the handler run when f is entered. Without one, entering f goes
// straight to its first state.
func (m *Machine[S]) Start(f Flow, h Handler[S]) *Machine[S] {
	def, ok := m.flows[f]
	switch {
	case !ok:
		m.errorf("start handler for unknown flow %q", f)
	case def.start != nil:
		m.errorf("flow %q has two start handlers", f)
	default:
		def.start = h
	}
	return m
}

func (m *Machine[S]) On(s State, kind EventKind, h Handler[S]) *Machine[S] {
	if _, ok := m.owner[s]; !ok {
		m.errorf("handler for undeclared state %q", s)
		return m
	}
	if !kind.valid() {
		m.errorf("handler for state %q has invalid event kind %d", s, kind)
		return m
	}
	k := handlerKey{s, kind}
	if _, dup := m.handlers[k]; dup {
		m.errorf("duplicate %s handler for state %q", kind, s)
		return m
	}
	m.handlers[k] = h
	return m
}

func (m *Machine[S]) Prompt(s State, p PromptFunc[S]) *Machine[S] {
	if _, ok := m.owner[s]; !ok {
		m.errorf("prompt for undeclared state %q", s)
		return m
	}
	if _, dup := m.prompts[s]; dup {
		m.errorf("duplicate prompt for state %q", s)
		return m
	}
	m.prompts[s] = p
	return m
}

// Trigger enters f when match accepts an event. With a session active only
// commands and button presses can trigger, which restarts the flow from scratch.
func (m *Machine[S]) Trigger(f Flow, match Matcher) *Machine[S] {
	if _, ok := m.flows[f]; !ok {
		m.errorf("trigger for unknown flow %q", f)
		return m
	}
	m.triggers = append(m.triggers, trigger{flow: f, match: match})
	return m
}

// Action registers a stateless handler checked before triggers and sessions.
// It never touches the session.
func (m *Machine[S]) Action(match Matcher, run ActionFunc) *Machine[S] {
	m.actions = append(m.actions, action{match: match, run: run})
	return m
}

func (m *Machine[S]) Gate(g GateFunc) *Machine[S] {
	m.gate = g
	return m
}

// Fallback answers events from users without a session that nothing else matched.
func (m *Machine[S]) Fallback(a ActionFunc) *Machine[S] {
	m.fallback = a
	return m
}

func (m *Machine[S]) OnCancel(c CancelFunc) *Machine[S] {
	m.onCancel = c
	return m
}

// OnFailure renders the generic "try again" reply.
func (m *Machine[S]) OnFailure(a ActionFunc) *Machine[S] {
	m.onFailure = a
	return m
}

func (m *Machine[S]) CancelWhen(match Matcher) *Machine[S] {
	m.isCancel = match
	return m
}

// UnmatchedNotice is passed to the prompt when a state gets input of a kind it does not accept.
func (m *Machine[S]) UnmatchedNotice(notice string) *Machine[S] {
	m.unmatched = notice
	return m
}

// Build validates the table. Every declared state needs a prompt so that bad
// input can always be answered by re-asking.
func (m *Machine[S]) Build() error {
	for s, f := range m.owner {
		if _, ok := m.prompts[s]; !ok {
			m.errorf("state %q of flow %q has no prompt", s, f)
		}
	}
	if len(m.errs) > 0 {
		return errors.Join(m.errs...)
	}
	m.built = true
	return nil
}

// Session returns the stored session of a user, or nil.
func (m *Machine[S]) Session(ctx context.Context, userID int64) (*Session[S], error) {
	return m.store.Load(ctx, userID)
}

// Dispatch handles one event. Events of the same user are processed one at a
// time; failures are logged and answered through OnFailure, never returned.
func (m *Machine[S]) Dispatch(ctx context.Context, ev Event) {
	began := time.Now()
	if !m.built {
		m.log.Error("dispatch on unbuilt machine", zap.Error(ErrNotBuilt))
		m.fail(ctx, ev)
		return
	}
	unlock, err := m.locker.Lock(ctx, ev.UserID)
	if err != nil {
		m.log.Error("session lock", zap.Int64("user_id", ev.UserID), zap.Error(err))
		m.fail(ctx, ev)
		return
	}
	defer unlock()

	flow, result := m.dispatch(ctx, ev)
	if flow == "" {
		flow = "none"
	}
	m.metrics.Dispatch(string(flow), result, time.Since(began).Seconds())
}

func (m *Machine[S]) dispatch(ctx context.Context, ev Event) (flow Flow, result string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("conversation handler panicked",
				zap.Any("panic", r),
				zap.Int64("user_id", ev.UserID),
				zap.String("flow", string(flow)),
				zap.Stack("stack"))
			m.fail(ctx, ev)
			result = "panic"
		}
	}()

	s, err := m.store.Load(ctx, ev.UserID)
	if err != nil {
		return "", m.failed(ctx, ev, "load session", err)
	}
	if s != nil {
		flow = s.Flow
	}

	if m.isCancel != nil && m.isCancel(ev) {
		if s != nil {
			if err := m.store.Delete(ctx, ev.UserID); err != nil {
				return flow, m.failed(ctx, ev, "delete session", err)
			}
		}
		if m.onCancel != nil {
			if err := m.onCancel(ctx, ev, s != nil); err != nil {
				m.log.Warn("cancel reply", zap.Int64("user_id", ev.UserID), zap.Error(err))
			}
		}
		return flow, "cancel"
	}

	gated := false
	if m.gate != nil {
		g, err := m.gate(ctx, ev)
		if err != nil {
			return flow, m.failed(ctx, ev, "gate", err)
		}
		if g != "" {
			gated = true
			if s == nil || s.Flow != g {
				return g, m.outcome(ctx, ev, m.start(ctx, g, ev, nil, 0))
			}
		}
	}

	if !gated {
		for _, a := range m.actions {
			if a.match(ev) {
				if err := a.run(ctx, ev); err != nil {
					return flow, m.failed(ctx, ev, "action", err)
				}
				return flow, "action"
			}
		}
		for _, t := range m.triggers {
			if (s == nil || ev.Kind == Command || ev.Kind == Callback) && t.match(ev) {
				return t.flow, m.outcome(ctx, ev, m.start(ctx, t.flow, ev, nil, 0))
			}
		}
	}

	if s == nil {
		if m.fallback != nil {
			if err := m.fallback(ctx, ev); err != nil {
				return "", m.failed(ctx, ev, "fallback", err)
			}
		}
		return "", "fallback"
	}

	if s.ChatID == 0 {
		s.ChatID = ev.ChatID
	}
	h, ok := m.handlers[handlerKey{s.State, ev.Kind}]
	if !ok {
		m.prompt(ctx, s, m.unmatched)
		return flow, "unmatched"
	}
	work := s.clone()
	step, err := h(ctx, work, ev)
	if err != nil {
		return flow, m.failed(ctx, ev, "handler", err)
	}
	return flow, m.outcome(ctx, ev, m.apply(ctx, work, step, ev, 0))
}

func (m *Machine[S]) start(ctx context.Context, f Flow, ev Event, parents []Frame, depth int) error {
	def := m.flows[f]
	s := &Session[S]{
		UserID:  ev.UserID,
		ChatID:  ev.ChatID,
		Flow:    f,
		State:   def.states[0],
		Parents: parents,
	}
	if def.start == nil {
		return m.apply(ctx, s, Goto(s.State), ev, depth)
	}
	step, err := def.start(ctx, s, ev)
	if err != nil {
		return err
	}
	return m.apply(ctx, s, step, ev, depth)
}

func (m *Machine[S]) apply(ctx context.Context, s *Session[S], step Step, ev Event, depth int) error {
	if depth > maxChain {
		return fmt.Errorf("conversation: transition chain deeper than %d", maxChain)
	}
	switch step.kind {
	case stepStay:
		return m.store.Save(ctx, s)

	case stepRetry:
		if err := m.store.Save(ctx, s); err != nil {
			return err
		}
		m.prompt(ctx, s, step.notice)
		return nil

	case stepGoto:
		if m.owner[step.state] != s.Flow {
			return fmt.Errorf("%w: %q -> %q", ErrForeignStep, s.Flow, step.state)
		}
		s.State = step.state
		if err := m.store.Save(ctx, s); err != nil {
			return err
		}
		m.prompt(ctx, s, "")
		return nil

	case stepEnd:
		return m.store.Delete(ctx, s.UserID)

	case stepEnter:
		if _, ok := m.flows[step.flow]; !ok {
			return fmt.Errorf("%w: unknown flow %q", ErrForeignStep, step.flow)
		}
		parents := append(slices.Clone(s.Parents), Frame{Flow: s.Flow, State: s.State})
		return m.start(ctx, step.flow, ev, parents, depth+1)

	case stepParent:
		if len(s.Parents) == 0 {
			return m.store.Delete(ctx, s.UserID)
		}
		top := s.Parents[len(s.Parents)-1]
		next := &Session[S]{
			UserID:  s.UserID,
			ChatID:  s.ChatID,
			Flow:    top.Flow,
			State:   top.State,
			Parents: s.Parents[:len(s.Parents)-1],
		}
		if err := m.store.Save(ctx, next); err != nil {
			return err
		}
		m.prompt(ctx, next, "")
		return nil
	}
	return fmt.Errorf("conversation: unknown step %d", step.kind)
}

// prompt failures are transport problems: logged, the state is already saved.
func (m *Machine[S]) prompt(ctx context.Context, s *Session[S], notice string) {
	p := m.prompts[s.State]
	if p == nil {
		return
	}
	if err := p(ctx, s, notice); err != nil {
		m.log.Warn("prompt failed",
			zap.Int64("user_id", s.UserID),
			zap.String("state", string(s.State)),
			zap.Error(err))
	}
}

func (m *Machine[S]) outcome(ctx context.Context, ev Event, err error) string {
	if err != nil {
		return m.failed(ctx, ev, "transition", err)
	}
	return "ok"
}

func (m *Machine[S]) failed(ctx context.Context, ev Event, stage string, err error) string {
	m.log.Error("conversation dispatch failed",
		zap.String("stage", stage),
		zap.Int64("user_id", ev.UserID),
		zap.String("kind", ev.Kind.String()),
		zap.Error(err))
	m.fail(ctx, ev)
	return "error"
}

func (m *Machine[S]) fail(ctx context.Context, ev Event) {
	if m.onFailure == nil {
		return
	}
	if err := m.onFailure(ctx, ev); err != nil {
		m.log.Warn("failure reply", zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
}

// TextIs matches text events equal to one of labels, ignoring case and spaces.
func TextIs(labels ...string) Matcher {
	return func(ev Event) bool {
		if ev.Kind != Text {
			return false
		}
		t := strings.TrimSpace(ev.Text)
		for _, l := range labels {
			if strings.EqualFold(t, l) {
				return true
			}
		}
		return false
	}
}

// CommandIs matches command events by name ("/buy").
func CommandIs(names ...string) Matcher {
	return func(ev Event) bool {
		n := ev.CommandName()
		for _, want := range names {
			if n == want {
				return true
			}
		}
		return false
	}
}

// CallbackPrefix matches callback data starting with prefix.
func CallbackPrefix(prefix string) Matcher {
	return func(ev Event) bool {
		return ev.Kind == Callback && strings.HasPrefix(ev.Text, prefix)
	}
}

// Any matches when one of ms does.
func Any(ms ...Matcher) Matcher {
	return func(ev Event) bool {
		for _, m := range ms {
			if m(ev) {
				return true
			}
		}
		return false
	}
}
