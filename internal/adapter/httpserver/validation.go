package httpserver

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
)

const (
	maxRecordIDLen = 100
	// MaxTopK bounds k on neighbour and batch queries.
	MaxTopK = 500
	// MaxListLimit bounds limit on record listings.
	MaxListLimit = 100
)

var recordIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func invalid(field, code, msg string) ValidationResult {
	return ValidationResult{Valid: false, Errors: []ValidationError{{Field: field, Code: code, Message: msg}}}
}

// ValidateRecordID validates a resume or job ID supplied under field.
func ValidateRecordID(field, id string) ValidationResult {
	if id == "" {
		return invalid(field, "REQUIRED", field+" is required")
	}
	if len(id) > maxRecordIDLen {
		return invalid(field, "TOO_LONG", field+" is too long (max 100 characters)")
	}
	if !recordIDPattern.MatchString(id) {
		return invalid(field, "INVALID_FORMAT", field+" contains invalid characters")
	}
	return ValidationResult{Valid: true}
}

// ValidateTopK parses the optional k query parameter. Zero means "use the default".
func ValidateTopK(raw string) (int, ValidationResult) {
	if raw == "" {
		return 0, ValidationResult{Valid: true}
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 || k > MaxTopK {
		return 0, invalid("k", "INVALID_FORMAT", "k must be between 1 and 500")
	}
	return k, ValidationResult{Valid: true}
}

// ValidateLimit parses the optional limit query parameter. Zero means "use the default".
func ValidateLimit(raw string) (int, ValidationResult) {
	if raw == "" {
		return 0, ValidationResult{Valid: true}
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > MaxListLimit {
		return 0, invalid("limit", "INVALID_FORMAT", "limit must be between 1 and 100")
	}
	return n, ValidationResult{Valid: true}
}

// ValidateMinScore parses the optional min_score query parameter.
func ValidateMinScore(raw string) (*float64, ValidationResult) {
	if raw == "" {
		return nil, ValidationResult{Valid: true}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 100 {
		return nil, invalid("min_score", "INVALID_FORMAT", "min_score must be a number between 0 and 100")
	}
	return &v, ValidationResult{Valid: true}
}

// ValidateVerdict parses the optional verdict query parameter, case-insensitively.
func ValidateVerdict(raw string) (*domain.Verdict, ValidationResult) {
	if raw == "" {
		return nil, ValidationResult{Valid: true}
	}
	v := domain.Verdict(strings.ToUpper(strings.TrimSpace(raw)))
	if !v.Valid() {
		return nil, invalid("verdict", "INVALID_VALUE", "verdict must be one of: HIGH, MEDIUM, LOW")
	}
	return &v, ValidationResult{Valid: true}
}

// SanitizeString sanitizes a string input
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	if len(input) > 1000 {
		input = input[:1000]
	}
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}
