package agent

import (
	"sync"

	"cognitive_backend/core"
)

// IdentitySource resolves the user and session identifiers of a capture
// session, typically from local session storage. ok is false when the
// storage has no value.
type IdentitySource interface {
	UserID() (string, bool)
	SessionID() (string, bool)
}

// StaticIdentity is an IdentitySource with fixed values. Empty fields report
// ok=false.
type StaticIdentity struct {
	User    string
	Session string
}

// UserID implements IdentitySource.
func (s StaticIdentity) UserID() (string, bool) {
	return s.User, s.User != ""
}

// SessionID implements IdentitySource.
func (s StaticIdentity) SessionID() (string, bool) {
	return s.Session, s.Session != ""
}

// Session is one cognitive session: the capture agent, the classifier with
// its transition log, and identifiers resolved lazily on first use.
type Session struct {
	Agent      *CaptureAgent
	Classifier *Classifier

	identity IdentitySource
	once     sync.Once
	userID   *string
	id       string
}

// NewSession binds an agent and classifier to an identity source. A nil
// source yields an anonymous session with a generated id.
func NewSession(agent *CaptureAgent, classifier *Classifier, identity IdentitySource) *Session {
	if identity == nil {
		identity = StaticIdentity{}
	}
	return &Session{Agent: agent, Classifier: classifier, identity: identity}
}

func (s *Session) resolve() {
	s.once.Do(func() {
		if user, ok := s.identity.UserID(); ok {
			s.userID = &user
		}
		if id, ok := s.identity.SessionID(); ok {
			s.id = id
		} else {
			s.id = core.NewSessionID()
		}
	})
}

// ID returns the session id.
func (s *Session) ID() string {
	s.resolve()
	return s.id
}

// UserID returns the user id, or nil for an anonymous session.
func (s *Session) UserID() *string {
	s.resolve()
	if s.userID == nil {
		return nil
	}
	user := *s.userID
	return &user
}

// SubjectID is the id the server aggregator tracks this session under: the
// user id when known, else the session id.
func (s *Session) SubjectID() string {
	if user := s.UserID(); user != nil {
		return *user
	}
	return s.ID()
}
