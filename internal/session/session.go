// Package session provides persistence for per-user conversation state.
// A session is the only cross-request state in the system; every
// request loads it, mutates it, and writes it back through a Store.
package session

import (
	"time"

	"github.com/drlike/asthmabot/internal/schema"
)

// State is the conversation state of a session.
type State string

const (
	// StateInit is the implicit state of an unseen or reset user.
	StateInit State = "INIT"
	// StateCollecting means the bot is gathering symptom answers.
	StateCollecting State = "COLLECTING"
	// StateConfirmAnalysis means the bot asked whether to run analysis.
	StateConfirmAnalysis State = "CONFIRM_ANALYSIS"
	// StatePostAnalysis means an analysis result has been delivered.
	StatePostAnalysis State = "POST_ANALYSIS"
)

// Valid reports whether s is a member of the state enum.
func (s State) Valid() bool {
	switch s {
	case StateInit, StateCollecting, StateConfirmAnalysis, StatePostAnalysis:
		return true
	}
	return false
}

// Session is one user's conversation record.
type Session struct {
	// State is the current conversation state. Defaults to INIT when
	// the stored value is absent or not a member of the enum.
	State State `json:"state"`
	// History is the ordered turn log ("사용자: ..." / "챗봇: ..."),
	// used as LLM context and as an audit trail.
	History []string `json:"history"`
	// ExtractedData is the accumulated symptom map over the fixed
	// vocabulary, plus allowed side-channel keys.
	ExtractedData schema.ExtractedData `json:"extracted_data"`
	// LastActivity is the time of the last mutation, used for idle
	// expiry.
	LastActivity time.Time `json:"lastActivity"`
}

// New returns a fresh INIT session with an all-null symptom map.
func New() *Session {
	return &Session{
		State:         StateInit,
		History:       []string{},
		ExtractedData: schema.NewExtractedData(),
	}
}

// Expired reports whether the session has been idle longer than ttl.
// A zero ttl disables expiry.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || s.LastActivity.IsZero() {
		return false
	}
	return now.Sub(s.LastActivity) > ttl
}

// Update is a partial session write. Nil fields are left unchanged by
// the store; the store always stamps LastActivity.
type Update struct {
	State         *State
	History       []string
	ExtractedData schema.ExtractedData
}

// WithState returns an Update setting only the state.
func WithState(state State) *Update {
	return &Update{State: &state}
}
