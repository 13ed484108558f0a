package playback

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is a revocable reference to a synthesized clip.
type Handle struct {
	ID          string    `json:"id"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Clip struct {
	Handle
	Data []byte
}

// Store keeps clips in memory until they are revoked.
type Store struct {
	mu    sync.RWMutex
	clips map[string]Clip
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		clips: make(map[string]Clip),
		now:   time.Now,
	}
}

// Create registers data and returns its handle. An empty contentType
// defaults to audio/wav, the format the TTS service answers with.
func (s *Store) Create(data []byte, contentType string) Handle {
	if contentType == "" {
		contentType = "audio/wav"
	}

	handle := Handle{
		ID:          uuid.NewString(),
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	s.clips[handle.ID] = Clip{Handle: handle, Data: data}
	s.mu.Unlock()

	return handle
}

func (s *Store) Open(id string) (Clip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clip, ok := s.clips[id]
	return clip, ok
}

// Revoke releases the clip. It reports whether the handle was still live.
func (s *Store) Revoke(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clips[id]; !ok {
		return false
	}
	delete(s.clips, id)
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clips)
}
