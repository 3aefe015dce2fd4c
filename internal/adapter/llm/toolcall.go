package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"agent-foundry/internal/domain"
)

// Strategy is one tool-call detection convention.
type Strategy string

const (
	// NativeCall reads typed call objects returned by the backend SDK.
	NativeCall Strategy = "native"
	// EmbeddedJSON reads a {"tool": ..., "args": {...}} object from free text.
	EmbeddedJSON Strategy = "embedded_json"
	// BracketTag reads a [TOOL:<name> <json-args>] tag from free text.
	BracketTag Strategy = "bracket_tag"
)

// Detection is the outcome of tool-call detection for one backend reply.
type Detection struct {
	Strategy Strategy
	Calls    []domain.ToolCall
}

// Detect tries each strategy in order and returns the first that matches.
// native holds the backend's structured calls, already normalized.
func Detect(order []Strategy, native []domain.ToolCall, text string) (Detection, bool) {
	for _, s := range order {
		switch s {
		case NativeCall:
			if len(native) > 0 {
				return Detection{Strategy: NativeCall, Calls: native}, true
			}
		case EmbeddedJSON:
			if c, ok := ParseEmbeddedJSON(text); ok {
				return Detection{Strategy: EmbeddedJSON, Calls: []domain.ToolCall{c}}, true
			}
		case BracketTag:
			if c, ok := ParseBracketTag(text); ok {
				return Detection{Strategy: BracketTag, Calls: []domain.ToolCall{c}}, true
			}
		}
	}
	return Detection{}, false
}

// nameAliases maps names backends emit to canonical gateway tool names.
var nameAliases = map[string]string{
	"email_send":         "email.send",
	"gmail_send":         "email.send",
	domain.ToolWebSearch: "google_search",
}

// NormalizeToolName maps a backend-emitted name to its canonical form.
// Canonical names map to themselves.
func NormalizeToolName(name string) string {
	if canon, ok := nameAliases[name]; ok {
		return canon
	}
	return name
}

// ParseEmbeddedJSON extracts the first balanced JSON object in text and
// matches it against the {"tool": <name>, "args": <object>} shape. The tool
// name is returned unresolved.
func ParseEmbeddedJSON(text string) (domain.ToolCall, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return domain.ToolCall{}, false
	}
	var obj struct {
		Tool string         `json:"tool"`
		Args map[string]any `json:"args"`
	}
	if err := unmarshalLenient(balancedObject(text[start:]), &obj); err != nil {
		return domain.ToolCall{}, false
	}
	if obj.Tool == "" || obj.Args == nil {
		return domain.ToolCall{}, false
	}
	return domain.ToolCall{Name: obj.Tool, Arguments: obj.Args, Raw: obj.Tool}, true
}

var bracketTagHead = regexp.MustCompile(`\[TOOL:([\w.]+)\s+`)

// ParseBracketTag extracts a [TOOL:<name> <json-args>] call from text.
func ParseBracketTag(text string) (domain.ToolCall, bool) {
	loc := bracketTagHead.FindStringSubmatchIndex(text)
	if loc == nil {
		return domain.ToolCall{}, false
	}
	raw := text[loc[2]:loc[3]]
	rest := text[loc[1]:]
	if !strings.HasPrefix(rest, "{") {
		return domain.ToolCall{}, false
	}
	var args map[string]any
	if err := unmarshalLenient(balancedObject(rest), &args); err != nil || args == nil {
		return domain.ToolCall{}, false
	}
	return domain.ToolCall{Name: NormalizeToolName(raw), Arguments: args, Raw: raw}, true
}

// balancedObject returns the prefix of s (which starts with '{') up to the
// matching close brace, skipping braces inside strings. An unterminated
// object is returned whole for repair.
func balancedObject(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return s
}

// unmarshalLenient decodes data into v, repairing malformed JSON once on a
// syntax error.
func unmarshalLenient(data string, v any) error {
	err := json.Unmarshal([]byte(data), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(data)
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// ResolveToolName maps a free-text tool name onto an installed tool:
// exact match, then underscores as dots, then a root-segment heuristic where
// a name containing "mail" also matches email tools. The heuristic is best
// effort and returns the first installed tool that fits.
func ResolveToolName(name string, installed []domain.GatewayTool) (string, bool) {
	for _, t := range installed {
		if t.Name == name {
			return t.Name, true
		}
	}
	dotted := strings.ReplaceAll(name, "_", ".")
	for _, t := range installed {
		if t.Name == dotted {
			return t.Name, true
		}
	}
	for _, t := range installed {
		root, _, _ := strings.Cut(t.Name, ".")
		if root == "" {
			continue
		}
		if strings.Contains(name, root) {
			return t.Name, true
		}
		if root == "email" && strings.Contains(name, "mail") {
			return t.Name, true
		}
	}
	return "", false
}
