package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmueller/voxstudio/internal/flow"
)

const sessionCookie = "voxstudio_session"

// session pairs the two flows of one browser. The flows never share state.
type session struct {
	id            string
	transcription *flow.Transcription
	synthesis     *flow.Synthesis
	lastSeen      time.Time
}

type sessionStore struct {
	ttl        time.Duration
	now        func() time.Time
	newSession func(id string) *session
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore(ttl time.Duration, build func(id string) *session, logger *zap.Logger) *sessionStore {
	return &sessionStore{
		ttl:        ttl,
		now:        time.Now,
		newSession: build,
		logger:     logger,
		sessions:   make(map[string]*session),
	}
}

// acquire returns the live session for id, or a fresh one when id is
// unknown or expired. The second result reports whether it was created.
func (s *sessionStore) acquire(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions[id]; ok && now.Sub(sess.lastSeen) < s.ttl {
		sess.lastSeen = now
		return sess, false
	}

	sess := s.newSession(uuid.NewString())
	sess.lastSeen = now
	s.sessions[sess.id] = sess
	return sess, true
}

// evictIdle drops sessions idle for longer than the ttl and closes their
// synthesis flows, which also covers requests still in flight.
func (s *sessionStore) evictIdle() int {
	s.mu.Lock()
	now := s.now()
	var expired []*session
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) >= s.ttl {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.synthesis.Close()
	}
	if len(expired) > 0 {
		s.logger.Debug("evicted idle sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

func (s *sessionStore) releaseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.synthesis.Close()
	}
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type sessionKey struct{}

func (s *sessionStore) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(sessionCookie); err == nil {
			id = c.Value
		}

		sess, created := s.acquire(id)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    sess.id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(ctx context.Context) *session {
	sess, _ := ctx.Value(sessionKey{}).(*session)
	return sess
}
