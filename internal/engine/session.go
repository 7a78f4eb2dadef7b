package engine

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "running":
		*s = StateRunning
	case "stopped":
		*s = StateStopped
	default:
		return fmt.Errorf("unknown engine state %q", text)
	}
	return nil
}

// Session is the state of one capture session. Zero times mean unset.
// TraceFlagID is only meaningful while State is StateRunning.
type Session struct {
	ID    string `json:"id"`
	State State  `json:"state"`

	InitTimestamp time.Time `json:"init_timestamp"`
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name"`
	DebugLevelID  string    `json:"debug_level_id"`
	TraceFlagID   string    `json:"trace_flag_id,omitempty"`

	LastFetchedLogTimestamp time.Time `json:"last_fetched_log_timestamp"`
	LookAheadTimestamp      time.Time `json:"look_ahead_timestamp"`
	PriorLookAheadTimestamp time.Time `json:"prior_look_ahead_timestamp"`

	LogsSeen bool `json:"logs_seen"`
}

// newSession begins a session at now.
func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:            id,
		State:         StateIdle,
		InitTimestamp: now,
	}
}

// lowerBound is the discovery cursor for a pass. fetchAll passes ignore the
// look-ahead so a report always sees every log since the last fetch.
func (s *Session) lowerBound(fetchAll bool) time.Time {
	if !fetchAll && !s.LookAheadTimestamp.IsZero() {
		return s.LookAheadTimestamp
	}
	if !s.LastFetchedLogTimestamp.IsZero() {
		return s.LastFetchedLogTimestamp
	}
	return s.InitTimestamp
}

// advance records a non-empty discovery result.
func (s *Session) advance(last time.Time, fetchAll bool) {
	if !fetchAll && !last.Equal(s.PriorLookAheadTimestamp) {
		s.LookAheadTimestamp = last
	}
	s.LastFetchedLogTimestamp = last
}

// bumpLookAhead moves the look-ahead one second past the boundary record the
// report just processed, remembering the previous value.
func (s *Session) bumpLookAhead() {
	s.PriorLookAheadTimestamp = s.LookAheadTimestamp
	if !s.LookAheadTimestamp.IsZero() {
		s.LookAheadTimestamp = s.LookAheadTimestamp.Add(time.Second)
	}
}

// teardown ends the session. Identity is kept so a stopped session can still
// be reported on.
func (s *Session) teardown() {
	s.State = StateStopped
	s.TraceFlagID = ""
	s.LastFetchedLogTimestamp = time.Time{}
	s.LookAheadTimestamp = time.Time{}
	s.PriorLookAheadTimestamp = time.Time{}
	s.LogsSeen = false
}
