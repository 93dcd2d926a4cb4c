// Package audit records every authentication attempt as an immutable
// device-activity entry. Each entry ties an attempt to an account (when one
// was resolved), an action, an outcome status, and request metadata. Entries
// are append-only: nothing in Gatehouse updates or deletes them. External
// reporting and SIEM tooling consume the trail as a read-only stream.
package audit

import (
	"time"
	"unicode/utf8"
)

// --- Action Constants ---
// Actions identify which flow produced the entry.

const (
	// ActionLogin is recorded for every sign-in attempt, success or failure.
	ActionLogin = "login"

	// ActionAPIKeySession is recorded for every JWT-exchange attempt.
	ActionAPIKeySession = "api_key_session"
)

// --- Status Constants ---
// Every terminal branch of the sign-in pipeline has its own status so the
// trail can reconstruct exactly where an attempt stopped.

const (
	StatusSucceed            = "succeed"
	StatusError              = "error"
	StatusInvalidCredentials = "invalid credentials"
	StatusNotConfirmed       = "not confirmed"
	StatusUnknownApplication = "unknown application"
	StatusMissingOTP         = "missing otp"
	StatusInvalidOTP         = "invalid otp"
)

// Entry represents one recorded authentication attempt.
type Entry struct {
	ID        int64     `json:"id"`
	AccountID *int64    `json:"account_id"` // Nil when the attempt failed before account resolution.
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// Metadata carries the request context captured with each attempt. All
// fields are optional; whatever the transport layer could resolve is stored.
type Metadata struct {
	UserIP      string `json:"user_ip,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	UserOS      string `json:"user_os,omitempty"`
	UserBrowser string `json:"user_browser,omitempty"`
	Country     string `json:"country,omitempty"`
	DeviceUID   string `json:"device_uid,omitempty"`
}

// Column widths of device_activity (migration 000004). Metadata comes from
// client-controlled headers, and under strict SQL mode an overlong value
// fails the INSERT, which the pipeline escalates to audit_write_failure.
// Clamping here keeps hostile or merely unusual clients from turning their
// own headers into a 500 on every attempt.
const (
	maxUserIPLen    = 45
	maxUserAgentLen = 255
	maxUAPartLen    = 30 // user_os, user_browser
	deviceUIDLen    = 36
)

// clamped returns a copy safe for the device_activity column widths.
// Country must be a two-letter code and DeviceUID must fit CHAR(36);
// values that do not conform are dropped rather than stored mangled.
func (m Metadata) clamped() Metadata {
	m.UserIP = truncate(m.UserIP, maxUserIPLen)
	m.UserAgent = truncate(m.UserAgent, maxUserAgentLen)
	m.UserOS = truncate(m.UserOS, maxUAPartLen)
	m.UserBrowser = truncate(m.UserBrowser, maxUAPartLen)

	if !isCountryCode(m.Country) {
		m.Country = ""
	}
	if len(m.DeviceUID) > deviceUIDLen {
		m.DeviceUID = ""
	}
	return m
}

// truncate cuts s to at most max runes. The columns are utf8mb4, so the
// limit counts characters, not bytes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// isCountryCode reports whether s is empty or a two-letter ASCII code.
func isCountryCode(s string) bool {
	if s == "" {
		return true
	}
	if len(s) != 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
