package streaming

import (
	"sync"

	"github.com/aukilabs/lodterrain/quadtree"
)

// ViewerSource holds the latest viewer reported by a viewpoint provider. It
// is safe for concurrent use.
type ViewerSource struct {
	mutex   sync.RWMutex
	viewer  quadtree.StaticViewer
	set     bool
	updates uint64
}

// Set replaces the current viewer and returns the sequence number of the
// update.
func (s *ViewerSource) Set(v quadtree.StaticViewer) uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.viewer = v
	s.set = true
	s.updates++
	return s.updates
}

// Clear removes the current viewer.
func (s *ViewerSource) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.viewer = quadtree.StaticViewer{}
	s.set = false
}

// Current returns the current viewer, or nil when none was set.
func (s *ViewerSource) Current() quadtree.Viewer {
	v, _ := s.Load()
	return v
}

// Load returns the current viewer with the sequence number of the update
// that set it.
func (s *ViewerSource) Load() (quadtree.Viewer, uint64) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.set {
		return nil, s.updates
	}
	return s.viewer, s.updates
}

// Updates returns the number of times a viewer was set.
func (s *ViewerSource) Updates() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.updates
}
