package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
//
// Missing API keys are not validation errors: a backend without credentials
// stays registered and fails its own requests before any network call.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateGateway(cfg, ve)
	validateHTTP(cfg, ve)
	validateAudit(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"gemini": true,
	"openai": true,
	"ollama": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: gemini, openai, ollama)", i, p.Type)
		}
		if p.BaseURL != "" {
			if _, err := url.ParseRequestURI(p.BaseURL); err != nil {
				ve.Add("llm.providers[%d] (%s): base_url %q is not a valid URL", i, p.Name, p.BaseURL)
			}
		}
		for j, r := range p.ModelRules {
			if r.Replace == "" {
				ve.Add("llm.providers[%d] (%s): model_rules[%d].replace must not be empty", i, p.Name, j)
			}
		}
		if p.Pricing != nil && (p.Pricing.InputPerMillion < 0 || p.Pricing.OutputPerMillion < 0) {
			ve.Add("llm.providers[%d] (%s): pricing must not be negative", i, p.Name)
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if g.BaseURL == "" {
		ve.Add("tool_gateway.base_url must not be empty")
	} else if u, err := url.ParseRequestURI(g.BaseURL); err != nil || u.Host == "" {
		ve.Add("tool_gateway.base_url %q is not a valid URL", g.BaseURL)
	}
	if g.TenantID == "" {
		ve.Add("tool_gateway.tenant_id must not be empty")
	}
	if g.Timeout < 0 {
		ve.Add("tool_gateway.timeout must not be negative")
	}
	if g.InvokeRatePerMin < 0 {
		ve.Add("tool_gateway.invoke_rate_per_min must be >= 0")
	}
}

func validateHTTP(cfg *Config, ve *ValidationError) {
	if cfg.HTTP.Addr == "" {
		ve.Add("http.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		ve.Add("http.addr %q: %v", cfg.HTTP.Addr, err)
	}
	if cfg.HTTP.RequestsPerMin <= 0 {
		ve.Add("http.requests_per_min must be > 0")
	}
	if cfg.HTTP.Burst <= 0 {
		ve.Add("http.burst must be > 0")
	}
}

var sizePattern = regexp.MustCompile(`^(?i)\s*\d+\s*(b|kb|mb|gb)?\s*$`)

func validateAudit(cfg *Config, ve *ValidationError) {
	if !cfg.Audit.Enabled {
		return
	}
	if cfg.Audit.Path == "" {
		ve.Add("audit.path must not be empty when audit is enabled")
	}
	if cfg.Audit.MaxAge < 0 {
		ve.Add("audit.max_age must not be negative")
	}
	if cfg.Audit.MaxSize != "" && !sizePattern.MatchString(cfg.Audit.MaxSize) {
		ve.Add("audit.max_size %q is invalid (e.g. 512KB, 100MB, 1GB)", cfg.Audit.MaxSize)
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio %v must be within [0, 1]", r)
	}
}
