// Package mcpsession tracks MCP client sessions and negotiates capability
// sets. Session lifetime follows the clock-injection pattern the teacher
// uses for its own expiry checks (internal/sessions/expiry.go's nowFunc),
// which keeps the idle-timeout tests deterministic.
package mcpsession

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcjorel/docwatch-mcp/internal/corekind"
)

// AnonymousCapability is granted to requests that carry an unknown or
// missing session id, for backward compatibility with callers that don't
// negotiate a session at all.
const AnonymousCapability = "basic"

// Session is one negotiated MCP client session.
type Session struct {
	ID           string
	ClientName   string
	ClientVersion string
	Capabilities []string
	AuthContext  map[string]any
	CreatedAt    time.Time
	LastActivity time.Time
}

// Store is a thread-safe session table with idle expiry.
type Store struct {
	mu      sync.Mutex
	byID    map[string]*Session
	ttl     time.Duration
	nowFunc func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's time source; used in tests.
func WithClock(nowFunc func() time.Time) Option {
	return func(s *Store) { s.nowFunc = nowFunc }
}

// NewStore creates a Store whose sessions expire after ttl of inactivity.
// ttl <= 0 means sessions never expire.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		byID:    make(map[string]*Session),
		ttl:     ttl,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession mints a fresh session with a new UUID.
func (s *Store) CreateSession(clientName, clientVersion string, capabilities []string, auth map[string]any) *Session {
	now := s.nowFunc()
	sess := &Session{
		ID:            uuid.NewString(),
		ClientName:    clientName,
		ClientVersion: clientVersion,
		Capabilities:  append([]string(nil), capabilities...),
		AuthContext:   auth,
		CreatedAt:     now,
		LastActivity:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sess.ID] = sess
	return sess.copy()
}

// GetSession looks up a session by id, refreshing LastActivity on a hit. An
// expired session is removed and reported as not found.
func (s *Store) GetSession(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	if s.expired(sess) {
		delete(s.byID, id)
		return nil, false
	}
	sess.LastActivity = s.nowFunc()
	return sess.copy(), true
}

// RemoveSession deletes a session unconditionally. A miss is a no-op.
func (s *Store) RemoveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// CleanupExpired removes every expired session and returns the count
// removed.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.byID {
		if s.expired(sess) {
			delete(s.byID, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of tracked sessions, expired or not.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// List returns a snapshot copy of every tracked session.
func (s *Store) List() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.byID))
	for _, sess := range s.byID {
		out = append(out, sess.copy())
	}
	return out
}

func (s *Store) expired(sess *Session) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.nowFunc().Sub(sess.LastActivity) > s.ttl
}

func (sess *Session) copy() *Session {
	c := *sess
	c.Capabilities = append([]string(nil), sess.Capabilities...)
	return &c
}

// Resolve looks up id in the store; an empty or unknown id falls back to an
// anonymous session with the minimal {basic} capability set, per §4.I.
func (s *Store) Resolve(id string) *Session {
	if id != "" {
		if sess, ok := s.GetSession(id); ok {
			return sess
		}
	}
	return &Session{
		ID:           "",
		Capabilities: []string{AnonymousCapability},
		CreatedAt:    s.nowFunc(),
		LastActivity: s.nowFunc(),
	}
}

// NegotiationRequest is the client's half of capability negotiation.
type NegotiationRequest struct {
	ClientName           string   `json:"client_name"`
	ClientVersion        string   `json:"client_version"`
	SupportedCapabilities []string `json:"supported_capabilities"`
}

// NegotiationResponse is the server's half of capability negotiation.
type NegotiationResponse struct {
	ServerName            string   `json:"server_name"`
	ServerVersion         string   `json:"server_version"`
	SupportedCapabilities []string `json:"supported_capabilities"`
	AvailableTools        []string `json:"available_tools"`
	AvailableResources    []string `json:"available_resources"`
}

// Negotiate creates a session for req and computes the common (intersected)
// capability set, returning both the session and the response payload.
func (s *Store) Negotiate(req NegotiationRequest, serverName, serverVersion string, serverCaps, tools, resources []string) (*Session, NegotiationResponse, error) {
	if req.ClientName == "" {
		return nil, NegotiationResponse{}, corekind.New(corekind.ProtocolInvalidParams, "client_name is required")
	}

	common := intersect(req.SupportedCapabilities, serverCaps)
	sess := s.CreateSession(req.ClientName, req.ClientVersion, common, nil)

	resp := NegotiationResponse{
		ServerName:            serverName,
		ServerVersion:         serverVersion,
		SupportedCapabilities: common,
		AvailableTools:        tools,
		AvailableResources:    resources,
	}
	return sess, resp, nil
}

// HasCapability reports whether sess advertises capability cap. A nil
// session has no capabilities.
func (sess *Session) HasCapability(cap string) bool {
	if sess == nil {
		return false
	}
	for _, c := range sess.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, v := range a {
		if set[v] && !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}
