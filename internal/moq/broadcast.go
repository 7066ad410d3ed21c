package moq

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry tracks which broadcast paths are currently announced and fans out
// incremental Announce entries to every open discovery stream, generalizing
// the connection pool's registered-client map to published paths instead of
// client connections.
type Registry struct {
	mu         sync.RWMutex
	broadcasts map[string]struct{}
	watchers   map[chan AnnounceEntry]struct{}
	logger     zerolog.Logger
}

// NewRegistry returns an empty broadcast registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		broadcasts: make(map[string]struct{}),
		watchers:   make(map[chan AnnounceEntry]struct{}),
		logger:     logger.With().Str("com", "registry").Logger(),
	}
}

// Announce marks path as live and notifies every watcher.
func (r *Registry) Announce(path string) {
	r.mu.Lock()
	r.broadcasts[path] = struct{}{}
	watchers := r.watcherSnapshot()
	r.mu.Unlock()

	r.logger.Info().Str("path", path).Msg("broadcast announced")
	r.notify(watchers, AnnounceEntry{Active: true, Path: path})
}

// Withdraw marks path as gone and notifies every watcher.
func (r *Registry) Withdraw(path string) {
	r.mu.Lock()
	delete(r.broadcasts, path)
	watchers := r.watcherSnapshot()
	r.mu.Unlock()

	r.logger.Info().Str("path", path).Msg("broadcast withdrawn")
	r.notify(watchers, AnnounceEntry{Active: false, Path: path})
}

// List returns every announced path with the given prefix.
func (r *Registry) List(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.broadcasts))
	for p := range r.broadcasts {
		if hasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Watch registers a channel that receives every future Announce/Withdraw
// event. Cancel unregisters and closes the channel. The caller must drain it
// promptly: a full channel drops the event rather than blocking Announce.
func (r *Registry) Watch() (ch <-chan AnnounceEntry, cancel func()) {
	c := make(chan AnnounceEntry, 32)
	r.mu.Lock()
	r.watchers[c] = struct{}{}
	r.mu.Unlock()

	return c, func() {
		r.mu.Lock()
		if _, ok := r.watchers[c]; ok {
			delete(r.watchers, c)
			close(c)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) watcherSnapshot() []chan AnnounceEntry {
	out := make([]chan AnnounceEntry, 0, len(r.watchers))
	for c := range r.watchers {
		out = append(out, c)
	}
	return out
}

func (r *Registry) notify(watchers []chan AnnounceEntry, entry AnnounceEntry) {
	for _, c := range watchers {
		select {
		case c <- entry:
		default:
			r.logger.Warn().Str("path", entry.Path).Msg("announce watcher channel full, dropping event")
		}
	}
}

func hasPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}
