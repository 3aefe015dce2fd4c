package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrInvalidInput = fmt.Errorf("invalid input")

	// Configuration errors: fatal to the request, never retried.
	ErrProviderNotFound  = fmt.Errorf("llm provider not found")
	ErrMissingCredential = fmt.Errorf("missing credential")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrDecryption        = fmt.Errorf("decryption failed")

	// Backend transport errors.
	ErrBackend         = fmt.Errorf("backend call failed")
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")

	// Gateway errors. These never leave the gateway client as Go errors;
	// they are carried inside ToolError values.
	ErrGateway      = fmt.Errorf("tool gateway error")
	ErrToolNotFound = fmt.Errorf("tool not found")

	ErrAgentNotFound = fmt.Errorf("agent not found")
	ErrSkillNotFound = fmt.Errorf("skill not found")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.SendMessage")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsConfigError reports whether err is a configuration failure
// (unknown provider, missing credential, bad config).
func IsConfigError(err error) bool {
	return errors.Is(err, ErrProviderNotFound) ||
		errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrConfigLoad)
}

// ErrorCode is a machine-parseable error category for monitoring and API responses.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeProviderNotFound  ErrorCode = "PROVIDER_NOT_FOUND"
	CodeMissingCredential ErrorCode = "MISSING_CREDENTIAL"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeBackend           ErrorCode = "BACKEND"
	CodeContextOverflow   ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeGateway           ErrorCode = "GATEWAY"
	CodeToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	CodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	CodeSkillNotFound     ErrorCode = "SKILL_NOT_FOUND"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:          CodeNotFound,
	ErrInvalidInput:      CodeInvalidInput,
	ErrProviderNotFound:  CodeProviderNotFound,
	ErrMissingCredential: CodeMissingCredential,
	ErrConfigLoad:        CodeConfigLoad,
	ErrDecryption:        CodeDecryption,
	ErrBackend:           CodeBackend,
	ErrContextOverflow:   CodeContextOverflow,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrGateway:           CodeGateway,
	ErrToolNotFound:      CodeToolNotFound,
	ErrAgentNotFound:     CodeAgentNotFound,
	ErrSkillNotFound:     CodeSkillNotFound,
}

// codePriority orders the chain walk so the most specific sentinel wins
// when an error wraps several (e.g. a rate limit wrapped as a backend failure).
var codePriority = []error{
	ErrAgentNotFound,
	ErrSkillNotFound,
	ErrToolNotFound,
	ErrProviderNotFound,
	ErrMissingCredential,
	ErrDecryption,
	ErrConfigLoad,
	ErrRateLimit,
	ErrAuthInvalid,
	ErrContextOverflow,
	ErrGateway,
	ErrBackend,
	ErrInvalidInput,
	ErrNotFound,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
