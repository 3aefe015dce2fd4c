package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agent-foundry/internal/adapter/audit"
	"agent-foundry/internal/adapter/skill"
	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// doctorClient is shared by the reachability checks.
var doctorClient = &http.Client{Timeout: 5 * time.Second}

func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "LLM API keys", Fn: checkLLMAPIKey},
		{Name: "Default provider", Fn: checkDefaultProvider},
		{Name: "Store", Fn: checkStore},
		{Name: "Audit log", Fn: checkAudit},
		{Name: "Custom skills", Fn: checkSkillsDir},
		{Name: "Tool gateway", Fn: checkToolGateway},
		{Name: "Ollama", Fn: checkOllama},
	}

	fmt.Println("foundry doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile passes when the file loaded. A missing file is only a
// warning since defaults plus env overrides are a valid setup.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and the FOUNDRY_* overrides",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

// checkLLMAPIKey verifies hosted providers have keys. Ollama needs none.
func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add at least one provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		if domain.ProviderKind(p.Type) == domain.ProviderOllama {
			continue
		}
		if p.APIKey != "" {
			withKey = append(withKey, p.Name)
		} else {
			withoutKey = append(withoutKey, p.Name)
		}
	}

	switch {
	case len(withoutKey) == 0:
		return CheckResult{Status: StatusPass, Message: "all hosted providers have API keys"}
	case len(withKey) == 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no API keys for: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set GEMINI_API_KEY / OPENAI_API_KEY in .env.local",
		}
	default:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
}

// checkDefaultProvider verifies the default provider names a configured backend.
func checkDefaultProvider(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	p, ok := cfg.Provider(cfg.LLM.DefaultProvider)
	if !ok {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s (%s)", p.Name, p.Type)}
}

// checkStore verifies the database directory exists or can be created and is writable.
func checkStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	dir, _ := filepath.Abs(filepath.Dir(cfg.Store.Path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("store directory %s cannot be created: %v", dir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", dir),
		}
	}
	probe := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("store directory %s is not writable: %v", dir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 755 %s", dir),
		}
	}
	os.Remove(probe)
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("database at %s", cfg.Store.Path)}
}

// checkAudit opens the activity log the way serve does and reports its size.
func checkAudit(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Audit.Enabled {
		return CheckResult{Status: StatusWarn, Message: "disabled", Fix: "Set audit.enabled: true to keep an activity log"}
	}
	al, err := audit.Open(cfg.Audit.Path, audit.Retention{}, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	al.Close()
	info, err := os.Stat(cfg.Audit.Path)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s (%d bytes)", cfg.Audit.Path, info.Size())}
}

// checkSkillsDir parses the custom skill directory, if any.
func checkSkillsDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if cfg.Skills.Dir == "" {
		return CheckResult{Status: StatusPass, Message: "built-in skills only"}
	}
	extra, err := skill.LoadDir(cfg.Skills.Dir, skill.Builtin())
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d custom skill(s) in %s", len(extra), cfg.Skills.Dir)}
}

// checkToolGateway reports whether the gateway answers at all. Any HTTP
// response counts as reachable.
func checkToolGateway(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if cfg.Gateway.BaseURL == "" {
		return CheckResult{Status: StatusWarn, Message: "no gateway URL, platform tools only"}
	}
	latency, err := ping(cfg.Gateway.BaseURL)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("cannot reach %s: %v", cfg.Gateway.BaseURL, err),
			Fix:     "Start the tool gateway or set FOUNDRY_TOOL_GATEWAY_URL",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s reachable (latency: %dms)", cfg.Gateway.BaseURL, latency.Milliseconds())}
}

// checkOllama probes every configured Ollama host.
func checkOllama(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	var hosts []string
	for _, p := range cfg.LLM.Providers {
		if domain.ProviderKind(p.Type) == domain.ProviderOllama {
			host := p.BaseURL
			if host == "" {
				host = "http://localhost:11434"
			}
			hosts = append(hosts, host)
		}
	}
	if len(hosts) == 0 {
		return CheckResult{Status: StatusPass, Message: "not configured"}
	}
	for _, h := range hosts {
		if _, err := ping(h); err != nil {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("cannot reach %s: %v", h, err),
				Fix:     "Run 'ollama serve'",
			}
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("reachable: %s", strings.Join(hosts, ", "))}
}

func ping(url string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), doctorClient.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := doctorClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return time.Since(start), nil
}
