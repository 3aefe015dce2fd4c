package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-foundry/internal/domain"
)

func TestNormalizeToolName(t *testing.T) {
	tests := map[string]string{
		"email_send": "email.send",
		"gmail_send": "email.send",
		"web_search": "google_search",
		"email.send": "email.send",
		"starcheck":  "starcheck",
	}
	for in, want := range tests {
		got := NormalizeToolName(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, got, NormalizeToolName(got), "normalization must be idempotent for %q", in)
	}
}

func TestParseEmbeddedJSON(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantOK   bool
		wantTool string
		wantArgs map[string]any
	}{
		{"bare object", `{"tool": "email_send", "args": {"to": "x"}}`, true, "email_send", map[string]any{"to": "x"}},
		{"surrounded by prose",
			"[Thought] user wants mail\n[Action] {\"tool\": \"starcheck\", \"args\": {\"id\": 7}} done. {\"other\": 1}",
			true, "starcheck", map[string]any{"id": float64(7)}},
		{"braces inside strings", `{"tool": "note", "args": {"text": "a } b { c"}}`, true, "note", map[string]any{"text": "a } b { c"}},
		{"repaired trailing comma", `{"tool": "starcheck", "args": {"id": 1,},}`, true, "starcheck", map[string]any{"id": float64(1)}},
		{"no json", "just a friendly answer", false, "", nil},
		{"wrong shape", `{"answer": 42}`, false, "", nil},
		{"missing args", `{"tool": "starcheck"}`, false, "", nil},
		{"args not an object", `{"tool": "starcheck", "args": "x"}`, false, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, ok := ParseEmbeddedJSON(tt.text)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantTool, call.Name)
			assert.Equal(t, tt.wantTool, call.Raw)
			assert.Equal(t, tt.wantArgs, call.Arguments)
		})
	}
}

func TestParseBracketTag(t *testing.T) {
	call, ok := ParseBracketTag(`Let me check. [TOOL:starcheck {"id": "u1", "deep": {"x": 1}}] and more`)
	require.True(t, ok)
	assert.Equal(t, "starcheck", call.Name)
	assert.Equal(t, map[string]any{"id": "u1", "deep": map[string]any{"x": float64(1)}}, call.Arguments)

	call, ok = ParseBracketTag(`[TOOL:email_send {"to": "x"}]`)
	require.True(t, ok)
	assert.Equal(t, "email.send", call.Name)
	assert.Equal(t, "email_send", call.Raw)

	call, ok = ParseBracketTag(`[TOOL:email.send {"to": "x"}]`)
	require.True(t, ok)
	assert.Equal(t, "email.send", call.Name)

	for _, text := range []string{"plain", "[TOOL:x]", "[TOOL:x not-json]", "[TOOL: {}]"} {
		_, ok := ParseBracketTag(text)
		assert.False(t, ok, text)
	}
}

func TestDetectOrder(t *testing.T) {
	native := []domain.ToolCall{{Name: "email.send", Arguments: map[string]any{}}}
	text := `[TOOL:starcheck {"id": 1}]`

	det, ok := Detect([]Strategy{NativeCall, BracketTag}, native, text)
	require.True(t, ok)
	assert.Equal(t, NativeCall, det.Strategy)

	det, ok = Detect([]Strategy{NativeCall, BracketTag}, nil, text)
	require.True(t, ok)
	assert.Equal(t, BracketTag, det.Strategy)
	assert.Equal(t, "starcheck", det.Calls[0].Name)

	_, ok = Detect([]Strategy{EmbeddedJSON}, native, "no call here")
	assert.False(t, ok)

	_, ok = Detect(nil, native, text)
	assert.False(t, ok)
}

func TestResolveToolName(t *testing.T) {
	installed := []domain.GatewayTool{{Name: "excel.fill"}, {Name: "email.send"}, {Name: "starcheck"}}

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"starcheck", "starcheck", true},
		{"email_send", "email.send", true},
		{"excel_fill", "excel.fill", true},
		{"send_gmail", "email.send", true},
		{"excel_export", "excel.fill", true},
		{"run_starcheck_now", "starcheck", true},
		{"weather", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveToolName(tt.in, installed)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, ok := ResolveToolName("email_send", nil)
	assert.False(t, ok)
}
