package shared

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Session names.
	Day   = "day"
	Night = "night"

	// Futures session times (taipei time).
	DayOpen    = "08:45"
	DayClose   = "13:45"
	NightOpen  = "15:00"
	NightClose = "05:00"
)

// Session represents a trading session window within a day. Sessions may
// span midnight (eg. the night session 15:00 - 05:00).
type Session struct {
	Name  string
	Open  time.Time
	Close time.Time
}

// NewSession initializes a new trading session.
func NewSession(name string, open string, close string) (*Session, error) {
	sessionOpen, err := time.Parse(SessionTimeLayout, open)
	if err != nil {
		return nil, fmt.Errorf("parsing session open: %w", err)
	}

	sessionClose, err := time.Parse(SessionTimeLayout, close)
	if err != nil {
		return nil, fmt.Errorf("parsing session close: %w", err)
	}

	session := &Session{
		Name:  name,
		Open:  sessionOpen,
		Close: sessionClose,
	}

	return session, nil
}

// Contains checks whether the clock time of the provided timestamp falls
// within the session.
func (s *Session) Contains(now time.Time) bool {
	current := now.Hour()*60 + now.Minute()
	open := s.Open.Hour()*60 + s.Open.Minute()
	close := s.Close.Hour()*60 + s.Close.Minute()

	if open <= close {
		return current >= open && current <= close
	}

	// The session spans midnight.
	return current >= open || current <= close
}

// InSession checks whether the provided timestamp falls within any of the
// provided sessions.
func InSession(now time.Time, sessions []*Session) bool {
	for idx := range sessions {
		if sessions[idx].Contains(now) {
			return true
		}
	}

	return false
}

// DefaultSessions returns the standard day session.
func DefaultSessions() ([]*Session, error) {
	day, err := NewSession(Day, DayOpen, DayClose)
	if err != nil {
		return nil, fmt.Errorf("creating day session: %w", err)
	}

	return []*Session{day}, nil
}

// ParseSessions parses session windows from their string representation,
// eg. "08:45-13:45,15:00-05:00".
func ParseSessions(encoded string) ([]*Session, error) {
	parts := strings.Split(encoded, ",")
	sessions := make([]*Session, 0, len(parts))
	for idx := range parts {
		bounds := strings.Split(strings.TrimSpace(parts[idx]), "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("malformed session window: %q", parts[idx])
		}

		name := Day
		if idx > 0 {
			name = Night
		}

		session, err := NewSession(name, bounds[0], bounds[1])
		if err != nil {
			return nil, fmt.Errorf("creating session from %q: %w", parts[idx], err)
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}
