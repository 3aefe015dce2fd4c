package llm

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"strings"

	"agent-foundry/internal/domain"
)

// resultPreviewLen caps tool results shown in trace step details.
const resultPreviewLen = 100

// Deps are the collaborators every adapter needs.
type Deps struct {
	Router  *Router
	Catalog domain.SkillCatalog
	Gateway domain.ToolGateway
}

// turn accumulates the trace of one chat turn.
type turn struct {
	router *Router
	policy ToolPolicy
	trace  domain.Trace
	deep   bool
}

func newTurn(router *Router, policy ToolPolicy, agent domain.Agent) *turn {
	return &turn{
		router: router,
		policy: policy,
		deep:   agent.HasSkill(domain.SkillDeepReasoning),
	}
}

func (t *turn) step(label string, typ domain.TraceStepType, detail string) {
	t.trace.Append(t.router.CreateStep(label, typ, detail))
}

// begin records the init and plan steps.
func (t *turn) begin(initLabel, initDetail string) {
	t.step(initLabel, domain.StepInit, initDetail)
	t.step("Strategic Planning", domain.StepPlan, "Analyzing prompt for L5 autonomy.")
}

// finish records the reflection steps when deep reasoning is active, then the
// final step, and returns the trace.
func (t *turn) finish(finalLabel string) []domain.TraceStep {
	if t.deep {
		t.step("Output Self-Reflection", domain.StepThink, "Verifying response against directives.")
		t.step("Experience Memory Update", domain.StepInit, "Updating latent vectors.")
	}
	t.step(finalLabel, domain.StepFinal, "")
	return t.trace.Steps()
}

// blocked records a refused call and returns the folded text.
func (t *turn) blocked(name string) string {
	t.step("Tool Blocked", domain.StepTool, "Blocked "+name)
	return "[System] " + marshalJSON(BlockedResult(), false)
}

// runCalls executes detected calls in order and returns the text to append
// to the backend reply.
func (t *turn) runCalls(ctx context.Context, det Detection) string {
	var b strings.Builder
	for _, call := range det.Calls {
		if t.policy.Blocked(call.Raw, call.Name) {
			b.WriteString("\n\n" + t.blocked(cmp.Or(call.Raw, call.Name)))
			continue
		}
		switch det.Strategy {
		case BracketTag:
			t.step("Tool Execution", domain.StepTool, "Executing "+call.Name+" (Regex Match)...")
			result := t.router.ExecuteTool(ctx, call.Name, call.Arguments)
			out := marshalJSON(result, false)
			t.step("Tool Result", domain.StepTool, out)
			b.WriteString("\n\n[System] Tool " + call.Name + " returned: " + out)
		default:
			t.step("Tool Invocation", domain.StepTool, "Model calling: "+call.Name)
			result := t.router.ExecuteTool(ctx, call.Name, call.Arguments)
			if te, ok := domain.AsToolError(result); ok {
				t.step("Tool Error", domain.StepTool, "Failed: "+te.Error)
				b.WriteString("\n\n[Tool Error]: " + te.Error)
				continue
			}
			t.step("Tool Execution", domain.StepTool, "Result: "+preview(result)+"...")
			b.WriteString("\n\n[Tool Output]: \n" + marshalJSON(result, true))
		}
	}
	return b.String()
}

// installedTools returns the discovered gateway tools installed on agent,
// in discovery order.
func installedTools(gw domain.ToolGateway, agent domain.Agent) []domain.GatewayTool {
	if gw == nil {
		return nil
	}
	var out []domain.GatewayTool
	for _, t := range gw.All() {
		if agent.HasTool(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

// sopBlock renders the operational protocol block for active skills that
// carry an instruction. It is empty when none do.
func sopBlock(skills []domain.Skill) string {
	var lines []string
	for _, s := range skills {
		if s.Instruction != "" {
			lines = append(lines, "[SKILL: "+s.Name+"] "+s.Instruction)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n=== OPERATIONAL PROTOCOLS (SOP) ===\n" + strings.Join(lines, "\n")
}

// systemInstruction assembles personality, platform awareness (deep
// reasoning only) and the SOP block for backends with a system role.
func systemInstruction(agent domain.Agent, catalog domain.SkillCatalog) string {
	var skills []domain.Skill
	var platform []domain.PlatformTool
	if catalog != nil {
		skills = catalog.Active(agent.Skills)
		platform = catalog.Platform()
	}
	var b strings.Builder
	b.WriteString(agent.Personality)
	if agent.HasSkill(domain.SkillDeepReasoning) {
		b.WriteString("\n[PLATFORM_AWARENESS] You have access to: " + marshalJSON(platform, false))
	}
	b.WriteString(sopBlock(skills))
	return b.String()
}

// toolSchema renders gateway parameters as a JSON schema object.
func toolSchema(p domain.ToolParameters) map[string]any {
	props := p.Properties
	if props == nil {
		props = map[string]any{}
	}
	typ := p.Type
	if typ == "" {
		typ = "object"
	}
	m := map[string]any{"type": typ, "properties": props}
	if len(p.Required) > 0 {
		m["required"] = p.Required
	}
	return m
}

// marshalJSON renders v without HTML escaping, indented when asked.
func marshalJSON(v any, indent bool) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return `"<unserializable>"`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func preview(v any) string {
	s := marshalJSON(v, false)
	if r := []rune(s); len(r) > resultPreviewLen {
		return string(r[:resultPreviewLen])
	}
	return s
}
