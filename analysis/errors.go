package analysis

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind partitions backend failures for worker policy. The worker is the
// only translator from kinds to job states.
type ErrorKind int

const (
	// KindBackend is the terminal catch-all; the job is marked failed.
	KindBackend ErrorKind = iota
	// KindQuotaExceeded means the API backend exhausted its daily quota;
	// the worker falls through to the scraper when one is configured.
	KindQuotaExceeded
	// KindBotChallenge means the scraped service demanded human
	// verification and retries were exhausted; the job is marked blocked.
	KindBotChallenge
	// KindRateLimit is HTTP 429 or equivalent; absorbed by backend-level
	// backoff and only surfaced when retries run out.
	KindRateLimit
	// KindVideoFetch is a per-video non-fatal failure; never surfaced to
	// the job, only counted.
	KindVideoFetch
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindBotChallenge:
		return "bot_challenge"
	case KindRateLimit:
		return "rate_limit"
	case KindVideoFetch:
		return "video_fetch_failed"
	default:
		return "backend_error"
	}
}

// FetchError wraps a backend failure with its policy kind.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with the given kind.
func NewFetchError(kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// KindOf extracts the policy kind from an error chain; unknown errors are
// terminal backend errors.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindBackend
}

// botChallengePatterns are the CAPTCHA-indicating phrases seen in scraper
// tool output when the origin demands human verification.
var botChallengePatterns = []string{
	"sign in to confirm",
	"captcha",
	"verify",
	"unusual traffic",
	"automated requests",
}

// IsBotChallengeText reports whether raw tool output indicates a bot
// challenge rather than a generic failure.
func IsBotChallengeText(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range botChallengePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsRateLimitText reports whether raw output indicates throttling.
func IsRateLimitText(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "rate limit")
}

// ClassifyScrapeError maps raw scraper tool errors to policy kinds. Bot
// challenges and rate limits are recognized by substring; anything else is a
// terminal backend error.
func ClassifyScrapeError(err error) ErrorKind {
	if err == nil {
		return KindBackend
	}
	msg := err.Error()
	if IsBotChallengeText(msg) {
		return KindBotChallenge
	}
	if IsRateLimitText(msg) {
		return KindRateLimit
	}
	return KindBackend
}
