// Package session orchestrates the prepare, generate, and curate loop. It
// owns the session registry, the per-session state machine, and the locking
// that serializes operations within one session while distinct sessions
// proceed concurrently.
package session

import (
	"regexp"
	"sync"
	"time"
)

// State identifies where a session is in the query loop.
type State string

const (
	// StateIdle means no operation is in flight and no context is pending.
	StateIdle State = "idle"

	// StatePreparing means a generation context is being assembled.
	StatePreparing State = "preparing_context"

	// StateAwaiting means a context was handed out and the service expects
	// the matching transcript back.
	StateAwaiting State = "awaiting_client_generation"

	// StateCurating means a transcript is being folded into the cheatsheet.
	StateCurating State = "curating"
)

// Operation status values returned to clients.
const (
	StatusOK            = "ok"
	StatusParseError    = "parse_error"
	StatusAnswerMissing = "answer_missing"
)

// sessionIDPattern bounds identifiers to a filesystem- and key-safe shape.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidSessionID reports whether id is acceptable as a session identifier.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Config controls the session registry.
type Config struct {
	// DefaultSession is used when a request names no session.
	DefaultSession string `yaml:"default_session"`

	// IdleTTL evicts registry handles for sessions with no recent
	// operations. Eviction drops only the in-memory handle; stored entries
	// survive and reload on the next access.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// DefaultConfig returns the registry defaults.
func DefaultConfig() Config {
	return Config{
		DefaultSession: "global",
		IdleTTL:        24 * time.Hour,
	}
}

// session is the in-memory handle for one session id. The handle carries no
// cheatsheet data; losing it to TTL eviction costs nothing but the state
// tag.
type session struct {
	id string

	// mu serializes operations on this session.
	mu sync.Mutex

	stateMu sync.RWMutex
	state   State
}

func newSession(id string) *session {
	return &session{id: id, state: StateIdle}
}

func (s *session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

func (s *session) currentState() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}
