package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	flowRegistration Flow = "registration"
	flowMenu         Flow = "menu"
	flowAmount       Flow = "amount"

	stContact State = "RequestingContact"
	stName    State = "RequestingFullName"
	stOS      State = "SelectingOS"
	stMenu    State = "Menu"
	stAmount  State = "EnteringAmount"
)

type regScratch struct {
	Phone string
	Name  string
}

// recorder collects everything the machine "sends".
type recorder struct {
	mu       sync.Mutex
	prompts  []string
	notified []regScratch
	replies  []string
	failures int
}

func (r *recorder) add(dst *[]string, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*dst = append(*dst, s)
}

func (r *recorder) lastPrompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.prompts) == 0 {
		return ""
	}
	return r.prompts[len(r.prompts)-1]
}

type harness struct {
	m        *Machine[regScratch]
	store    *MemoryStore[regScratch]
	rec      *recorder
	approved map[int64]bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    NewMemoryStore[regScratch](time.Hour),
		rec:      &recorder{},
		approved: map[int64]bool{},
	}
	prompt := func(s State) PromptFunc[regScratch] {
		return func(_ context.Context, _ *Session[regScratch], notice string) error {
			h.rec.add(&h.rec.prompts, strings.TrimSpace(string(s)+" "+notice))
			return nil
		}
	}

	m := New[regScratch](h.store, zaptest.NewLogger(t), nil)
	m.DefineFlow(flowRegistration, stContact, stName, stOS).
		Prompt(stContact, prompt(stContact)).
		Prompt(stName, prompt(stName)).
		Prompt(stOS, prompt(stOS)).
		On(stContact, Contact, func(_ context.Context, s *Session[regScratch], ev Event) (Step, error) {
			if !ev.OwnContact() {
				return Retry("own"), nil
			}
			s.Scratch.Phone = ev.Phone
			return Goto(stName), nil
		}).
		On(stName, Text, func(_ context.Context, s *Session[regScratch], ev Event) (Step, error) {
			name := strings.TrimSpace(ev.Text)
			if name == "" {
				return Retry("empty"), nil
			}
			if name == "boom" {
				return Stay(), errors.New("storage down")
			}
			if name == "panic" {
				panic("handler bug")
			}
			s.Scratch.Name = name
			return Goto(stOS), nil
		}).
		On(stOS, Text, func(_ context.Context, s *Session[regScratch], ev Event) (Step, error) {
			switch strings.ToLower(ev.Text) {
			case "android", "ios", "windows":
				h.rec.mu.Lock()
				h.rec.notified = append(h.rec.notified, s.Scratch)
				h.rec.mu.Unlock()
				return End(), nil
			}
			return Retry("os"), nil
		})

	m.DefineFlow(flowMenu, stMenu).
		Prompt(stMenu, prompt(stMenu)).
		Trigger(flowMenu, CommandIs("/menu")).
		On(stMenu, Text, func(_ context.Context, _ *Session[regScratch], ev Event) (Step, error) {
			if ev.Text == "amount" {
				return Enter(flowAmount), nil
			}
			if ev.Text == "close" {
				return End(), nil
			}
			return Retry("menu"), nil
		})

	m.DefineFlow(flowAmount, stAmount).
		Prompt(stAmount, prompt(stAmount)).
		On(stAmount, Text, func(_ context.Context, _ *Session[regScratch], ev Event) (Step, error) {
			if ev.Text == "" || strings.Trim(ev.Text, "0123456789") != "" {
				return Retry("number"), nil
			}
			h.rec.add(&h.rec.replies, "amount "+ev.Text)
			return Parent(), nil
		})

	m.Gate(func(_ context.Context, ev Event) (Flow, error) {
		if h.approved[ev.UserID] {
			return "", nil
		}
		return flowRegistration, nil
	}).
		Fallback(func(_ context.Context, ev Event) error {
			h.rec.add(&h.rec.replies, "main menu")
			return nil
		}).
		OnCancel(func(_ context.Context, _ Event, had bool) error {
			h.rec.add(&h.rec.replies, "cancelled")
			return nil
		}).
		OnFailure(func(_ context.Context, _ Event) error {
			h.rec.mu.Lock()
			h.rec.failures++
			h.rec.mu.Unlock()
			return nil
		})

	require.NoError(t, m.Build())
	h.m = m
	return h
}

func (h *harness) text(id int64, s string) {
	h.m.Dispatch(context.Background(), Event{Kind: Text, UserID: id, ChatID: id, Text: s})
}

func (h *harness) command(id int64, s string) {
	h.m.Dispatch(context.Background(), Event{Kind: Command, UserID: id, ChatID: id, Text: s})
}

func (h *harness) contact(id int64, phone string) {
	h.m.Dispatch(context.Background(), Event{Kind: Contact, UserID: id, ChatID: id, Phone: phone, ContactUserID: id})
}

func (h *harness) state(t *testing.T, id int64) State {
	t.Helper()
	s, err := h.store.Load(context.Background(), id)
	require.NoError(t, err)
	if s == nil {
		return ""
	}
	return s.State
}

func TestRegistrationDiagram(t *testing.T) {
	h := newHarness(t)
	const u = 1

	h.command(u, "/start")
	require.Equal(t, stContact, h.state(t, u))
	require.Equal(t, string(stContact), h.rec.lastPrompt())

	// text is not accepted while a contact is expected
	h.text(u, "hello")
	require.Equal(t, stContact, h.state(t, u))
	require.Equal(t, string(stContact), h.rec.lastPrompt())

	h.contact(u, "+989121234567")
	require.Equal(t, stName, h.state(t, u))

	h.text(u, "   ")
	require.Equal(t, stName, h.state(t, u))
	require.Equal(t, "RequestingFullName empty", h.rec.lastPrompt())

	h.text(u, "Ali Ahmadi")
	require.Equal(t, stOS, h.state(t, u))

	h.text(u, "beos")
	require.Equal(t, stOS, h.state(t, u))
	require.Equal(t, "SelectingOS os", h.rec.lastPrompt())

	h.text(u, "android")
	require.Equal(t, State(""), h.state(t, u))
	require.Equal(t, []regScratch{{Phone: "+989121234567", Name: "Ali Ahmadi"}}, h.rec.notified)
}

func TestApprovedUserFallsThrough(t *testing.T) {
	h := newHarness(t)
	h.approved[2] = true

	h.command(2, "/start")
	require.Equal(t, State(""), h.state(t, 2))
	require.Equal(t, []string{"main menu"}, h.rec.replies)
}

func TestGateIgnoresTriggersForUnapproved(t *testing.T) {
	h := newHarness(t)
	h.command(3, "/start")
	h.contact(3, "+1")

	h.command(3, "/menu")
	require.Equal(t, stName, h.state(t, 3), "unapproved users stay in registration")
}

func TestCancelDiscardsScratch(t *testing.T) {
	h := newHarness(t)
	const u = 4

	h.command(u, "/start")
	h.contact(u, "+111")
	h.text(u, "First Try")
	require.Equal(t, stOS, h.state(t, u))

	h.command(u, "/cancel")
	require.Equal(t, State(""), h.state(t, u))
	require.Contains(t, h.rec.replies, "cancelled")

	h.text(u, "anything")
	require.Equal(t, stContact, h.state(t, u))
	s, err := h.store.Load(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, regScratch{}, s.Scratch)

	h.contact(u, "+222")
	h.text(u, "Second Try")
	h.text(u, "ios")
	require.Equal(t, []regScratch{{Phone: "+222", Name: "Second Try"}}, h.rec.notified)
}

func TestCancelCallbackFromAnyState(t *testing.T) {
	h := newHarness(t)
	h.command(5, "/start")
	h.m.Dispatch(context.Background(), Event{Kind: Callback, UserID: 5, ChatID: 5, Text: "cancel"})
	require.Equal(t, State(""), h.state(t, 5))
}

func TestHandlerErrorKeepsSession(t *testing.T) {
	h := newHarness(t)
	const u = 6
	h.command(u, "/start")
	h.contact(u, "+333")

	h.text(u, "boom")
	require.Equal(t, 1, h.rec.failures)
	require.Equal(t, stName, h.state(t, u))

	h.text(u, "panic")
	require.Equal(t, 2, h.rec.failures)
	require.Equal(t, stName, h.state(t, u))

	// the session still works
	h.text(u, "Recovered")
	require.Equal(t, stOS, h.state(t, u))
}

func TestNestedFlowReturnsToParent(t *testing.T) {
	h := newHarness(t)
	const u = 7
	h.approved[u] = true

	h.command(u, "/menu")
	require.Equal(t, stMenu, h.state(t, u))

	h.text(u, "amount")
	require.Equal(t, stAmount, h.state(t, u))
	s, err := h.store.Load(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, []Frame{{Flow: flowMenu, State: stMenu}}, s.Parents)

	h.text(u, "12x")
	require.Equal(t, stAmount, h.state(t, u))
	require.Equal(t, "EnteringAmount number", h.rec.lastPrompt())

	h.text(u, "120")
	require.Equal(t, stMenu, h.state(t, u))
	require.Equal(t, string(stMenu), h.rec.lastPrompt())
	require.Contains(t, h.rec.replies, "amount 120")

	s, err = h.store.Load(context.Background(), u)
	require.NoError(t, err)
	require.Empty(t, s.Parents)

	h.text(u, "close")
	require.Equal(t, State(""), h.state(t, u))
}

func TestCommandRestartsFlow(t *testing.T) {
	h := newHarness(t)
	const u = 8
	h.approved[u] = true

	h.command(u, "/menu")
	h.text(u, "amount")
	require.Equal(t, stAmount, h.state(t, u))

	h.command(u, "/menu")
	require.Equal(t, stMenu, h.state(t, u))
	s, err := h.store.Load(context.Background(), u)
	require.NoError(t, err)
	require.Empty(t, s.Parents)
}

func TestConstructionErrors(t *testing.T) {
	noop := func(context.Context, *Session[regScratch], Event) (Step, error) { return Stay(), nil }
	prompt := func(context.Context, *Session[regScratch], string) error { return nil }

	cases := map[string]func(m *Machine[regScratch]){
		"state in two flows": func(m *Machine[regScratch]) {
			m.DefineFlow("a", "S1").DefineFlow("b", "S1")
		},
		"undeclared state": func(m *Machine[regScratch]) {
			m.On("Ghost", Text, noop)
		},
		"duplicate handler": func(m *Machine[regScratch]) {
			m.DefineFlow("a", "S1").Prompt("S1", prompt).On("S1", Text, noop).On("S1", Text, noop)
		},
		"unknown trigger flow": func(m *Machine[regScratch]) {
			m.Trigger("nope", CommandIs("/x"))
		},
		"missing prompt": func(m *Machine[regScratch]) {
			m.DefineFlow("a", "S1")
		},
		"invalid kind": func(m *Machine[regScratch]) {
			m.DefineFlow("a", "S1").Prompt("S1", prompt).On("S1", EventKind(42), noop)
		},
		"flow without states": func(m *Machine[regScratch]) {
			m.DefineFlow("a")
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			m := New[regScratch](NewMemoryStore[regScratch](0), zaptest.NewLogger(t), nil)
			build(m)
			require.Error(t, m.Build())
		})
	}
}

func TestDispatchBeforeBuildFails(t *testing.T) {
	var failed bool
	m := New[regScratch](NewMemoryStore[regScratch](0), zaptest.NewLogger(t), nil)
	m.OnFailure(func(context.Context, Event) error { failed = true; return nil })
	m.Dispatch(context.Background(), Event{Kind: Text, UserID: 1})
	require.True(t, failed)
}

func TestEventsOfOneUserAreSerialised(t *testing.T) {
	store := NewMemoryStore[regScratch](0)
	m := New[regScratch](store, zaptest.NewLogger(t), nil)

	var inflight, peak, total atomic.Int32
	m.DefineFlow("counter", "Counting").
		Prompt("Counting", func(context.Context, *Session[regScratch], string) error { return nil }).
		Trigger("counter", CommandIs("/count")).
		On("Counting", Text, func(_ context.Context, s *Session[regScratch], _ Event) (Step, error) {
			n := inflight.Add(1)
			defer inflight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			s.Scratch.Name += "x"
			total.Add(1)
			return Stay(), nil
		})
	require.NoError(t, m.Build())

	ctx := context.Background()
	m.Dispatch(ctx, Event{Kind: Command, UserID: 1, Text: "/count"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Dispatch(ctx, Event{Kind: Text, UserID: 1, Text: "tick"})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), peak.Load())
	require.Equal(t, int32(20), total.Load())
	s, err := store.Load(ctx, 1)
	require.NoError(t, err)
	require.Len(t, s.Scratch.Name, 20, "no lost updates")
}

func TestEventCommandParsing(t *testing.T) {
	ev := Event{Kind: Command, Text: "/Start@storebot ref 42"}
	require.Equal(t, "/start", ev.CommandName())
	require.Equal(t, "ref 42", ev.CommandArgs())

	require.Empty(t, Event{Kind: Text, Text: "/start"}.CommandName())
	require.True(t, Event{Kind: Contact, UserID: 1, ContactUserID: 1}.OwnContact())
	require.False(t, Event{Kind: Contact, UserID: 1, ContactUserID: 2}.OwnContact())
	require.False(t, Event{Kind: Contact, UserID: 1}.OwnContact())
	require.Equal(t, "callback", Callback.String())
}
