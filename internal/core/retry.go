package core

import "strings"

// ShouldRetry reports whether a further attempt is warranted after attempt
// (zero-based) failed with message. Retryable iff retries remain AND the
// lowercased message contains one of the policy's patterns as a substring.
// The remote executor surfaces heterogeneous failures (HTTP codes, rate
// limit phrases) as plain text, so matching is on raw message content, not
// structured codes.
func ShouldRetry(attempt int, message string, policy RetryPolicy) bool {
	if attempt >= policy.MaxRetries {
		return false
	}
	msg := strings.ToLower(message)
	for _, pattern := range policy.RetryPatterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
