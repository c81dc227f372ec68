package conversation

type stepKind int

const (
	stepStay stepKind = iota
	stepRetry
	stepGoto
	stepEnd
	stepEnter
	stepParent
)

// Step is a handler's transition decision.
type Step struct {
	kind   stepKind
	state  State
	flow   Flow
	notice string
}

// Stay keeps the current state without prompting again.
func Stay() Step { return Step{kind: stepStay} }

// Retry keeps the current state and re-emits its prompt with notice.
func Retry(notice string) Step { return Step{kind: stepRetry, notice: notice} }

// Goto moves to another state of the same flow and prompts it.
func Goto(s State) Step { return Step{kind: stepGoto, state: s} }

// End finishes the flow and drops the session.
func End() Step { return Step{kind: stepEnd} }

// Enter suspends the current flow and starts f on top of it.
func Enter(f Flow) Step { return Step{kind: stepEnter, flow: f} }

// Parent finishes the current flow and returns to the suspended parent state.
// With no parent it behaves like End.
func Parent() Step { return Step{kind: stepParent} }
