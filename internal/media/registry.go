package media

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrAlreadyExists = errors.New("camera already exists")
	ErrNotFound      = errors.New("camera not found")
)

// Registry owns the set of active CameraConnections. All mutations for a
// given camera id serialize on a per-id mutex so operations on distinct
// cameras never block each other; the global lock only guards map access.
type Registry struct {
	factory SourceFactory
	logger  *zap.Logger
	subs    []Subscriber

	mu    sync.Mutex
	conns map[string]*CameraConnection
	locks map[string]*idMutex
}

// idMutex is a refcounted per-id lock entry. Entries are dropped once the
// last holder releases, so a churn of distinct camera ids does not grow
// the map.
type idMutex struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry builds a registry. Every connection it creates is wired to
// the given subscribers (recorder, analyzer) before it can produce frames.
func NewRegistry(factory SourceFactory, logger *zap.Logger, subs ...Subscriber) *Registry {
	return &Registry{
		factory: factory,
		logger:  logger,
		subs:    subs,
		conns:   make(map[string]*CameraConnection),
		locks:   make(map[string]*idMutex),
	}
}

// lockID acquires the mutex serializing mutations for one camera id and
// returns its release function. Concurrent holders always share one entry;
// the entry is removed once the last holder releases.
func (r *Registry) lockID(id string) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &idMutex{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}

// Add registers a camera. The connection is created stopped.
func (r *Registry) Add(cfg ConnectionConfig) error {
	release := r.lockID(cfg.ID)
	defer release()

	r.mu.Lock()
	_, exists := r.conns[cfg.ID]
	r.mu.Unlock()
	if exists {
		return ErrAlreadyExists
	}

	conn := NewCameraConnection(cfg, r.factory, r.logger)
	for _, s := range r.subs {
		conn.Subscribe(s)
	}

	r.mu.Lock()
	r.conns[cfg.ID] = conn
	r.mu.Unlock()

	r.logger.Info("camera added", zap.String("camera_id", cfg.ID), zap.String("source", SanitizeURI(cfg.SourceURI)))
	return nil
}

// Remove stops the connection synchronously, releasing its source before
// returning, then drops it. An unknown id reports ErrNotFound; a second
// call for the same id is a safe no-op apart from that error, never a
// double release.
func (r *Registry) Remove(id string) error {
	release := r.lockID(id)
	defer release()

	r.mu.Lock()
	conn, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	conn.Stop()

	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()

	r.logger.Info("camera removed", zap.String("camera_id", id))
	return nil
}

// Start begins capture for a registered camera.
func (r *Registry) Start(id string) error {
	release := r.lockID(id)
	defer release()

	conn, ok := r.get(id)
	if !ok {
		return ErrNotFound
	}
	conn.Start()
	return nil
}

// Stop halts capture without removing the camera.
func (r *Registry) Stop(id string) error {
	release := r.lockID(id)
	defer release()

	conn, ok := r.get(id)
	if !ok {
		return ErrNotFound
	}
	conn.Stop()
	return nil
}

// Get returns the connection for id.
func (r *Registry) Get(id string) (*CameraConnection, bool) {
	return r.get(id)
}

func (r *Registry) get(id string) (*CameraConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// List returns registered camera ids in stable order.
func (r *Registry) List() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Shutdown stops every connection. Used at process teardown.
func (r *Registry) Shutdown() {
	for _, id := range r.List() {
		if err := r.Stop(id); err != nil && !errors.Is(err, ErrNotFound) {
			r.logger.Warn("stop on shutdown failed", zap.String("camera_id", id), zap.Error(err))
		}
	}
}
