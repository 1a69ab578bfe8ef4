package live

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
)

var ErrSessionNotFound = errors.New("session not found")

// Registry owns all live sessions. It is created once at process start
// and torn down at shutdown; there is no ambient global session state.
type Registry struct {
	detector detect.Detector
	encoder  FrameEncoder
	factory  media.SourceFactory
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(detector detect.Detector, encoder FrameEncoder, factory media.SourceFactory, logger *zap.Logger) *Registry {
	return &Registry{
		detector: detector,
		encoder:  encoder,
		factory:  factory,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// StartSource creates and starts a session capturing from the given URI.
func (r *Registry) StartSource(label, sourceURI string, params detect.Params) (*Session, error) {
	id := uuid.New().String()
	src := r.factory(media.ConnectionConfig{
		ID:        id,
		SourceURI: sourceURI,
	})
	s := NewSession(SessionConfig{
		ID:     id,
		Label:  label,
		Source: src,
		Params: params,
	}, r.detector, r.encoder, r.logger)

	if err := s.Start(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s, nil
}

// StartPush creates a push-mode session fed via Session.PushFrame.
func (r *Registry) StartPush(label string, params detect.Params) (*Session, error) {
	id := uuid.New().String()
	s := NewSession(SessionConfig{
		ID:     id,
		Label:  label,
		Params: params,
	}, r.detector, r.encoder, r.logger)

	if err := s.Start(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s, nil
}

// Get looks up a running session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Stop stops a session and removes it. Stopping an already-removed
// session returns ErrSessionNotFound.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Stop()
	return nil
}

// List returns the ids of running sessions.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// Shutdown stops every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
