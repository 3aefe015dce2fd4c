package domain

// TraceStepType classifies a trace step.
type TraceStepType string

const (
	StepInit   TraceStepType = "init"
	StepPlan   TraceStepType = "plan"
	StepThink  TraceStepType = "think"
	StepDecide TraceStepType = "decide"
	StepAct    TraceStepType = "act"
	StepFinal  TraceStepType = "final"
	StepTool   TraceStepType = "tool"
)

// Trace step statuses.
const (
	StepComplete   = "complete"
	StepProcessing = "processing"
	StepPending    = "pending"
)

// TraceStep is one labeled entry in the execution trace of a chat turn.
type TraceStep struct {
	Label     string        `json:"label"`
	Type      TraceStepType `json:"type"`
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Duration  string        `json:"duration"`
	Detail    string        `json:"detail,omitempty"`
}

// Trace is an append-only step log for a single request.
type Trace struct {
	steps []TraceStep
}

// Append adds a step at the end.
func (t *Trace) Append(step TraceStep) { t.steps = append(t.steps, step) }

// Steps returns a copy of the recorded steps in order.
func (t *Trace) Steps() []TraceStep {
	out := make([]TraceStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// Len returns the number of recorded steps.
func (t *Trace) Len() int { return len(t.steps) }
