package server

import (
	"sync"

	"logwarden/internal/correlate"
	"logwarden/internal/detect"
)

// DefaultStoreCapacity bounds how many recent results the API can serve.
const DefaultStoreCapacity = 500

// Store keeps the most recent detections and incidents for the API. It is a
// bounded buffer; the pipeline remains per-run and nothing here is durable.
type Store struct {
	mu         sync.RWMutex
	detections []detect.Detection
	incidents  []correlate.Incident
	max        int
}

// NewStore builds a store holding at most max entries per result kind.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultStoreCapacity
	}
	return &Store{max: max}
}

// RecordDetections appends a batch, discarding the oldest entries beyond
// capacity.
func (s *Store) RecordDetections(dets []detect.Detection) {
	if len(dets) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections = append(s.detections, dets...)
	if over := len(s.detections) - s.max; over > 0 {
		s.detections = s.detections[over:]
	}
}

// RecordIncidents appends a batch, discarding the oldest entries beyond
// capacity.
func (s *Store) RecordIncidents(incidents []correlate.Incident) {
	if len(incidents) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, incidents...)
	if over := len(s.incidents) - s.max; over > 0 {
		s.incidents = s.incidents[over:]
	}
}

// Detections returns the retained detections, newest last.
func (s *Store) Detections() []detect.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]detect.Detection, len(s.detections))
	copy(out, s.detections)
	return out
}

// Incidents returns the retained incidents, newest last.
func (s *Store) Incidents() []correlate.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]correlate.Incident, len(s.incidents))
	copy(out, s.incidents)
	return out
}
