package vswitch

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Manager runs multiple isolated segments, one per UDP listen port.
// Segments share nothing: each has its own socket, MAC table and port
// registry, so endpoints on different ports cannot reach each other.
type Manager struct {
	segments map[int]*VirtualSwitch
	defaults Config
	mutex    sync.RWMutex
}

// NewManager creates a manager whose segments inherit the given
// defaults (the Port field is overridden per segment).
func NewManager(defaults Config) *Manager {
	return &Manager{
		segments: make(map[int]*VirtualSwitch),
		defaults: defaults,
	}
}

// AddSegment creates a new isolated segment on the specified port.
func (m *Manager) AddSegment(port int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.segments[port]; exists {
		return fmt.Errorf("segment already exists on port %d", port)
	}

	cfg := m.defaults
	cfg.Port = port
	m.segments[port] = NewVirtualSwitch(cfg)

	log.WithField("port", port).Info("created segment")
	return nil
}

// RemoveSegment stops a segment and forgets it.
func (m *Manager) RemoveSegment(port int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	vs, exists := m.segments[port]
	if !exists {
		return fmt.Errorf("segment does not exist on port %d", port)
	}

	vs.Stop()
	delete(m.segments, port)

	log.WithField("port", port).Info("removed segment")
	return nil
}

// StartAll starts every segment.
func (m *Manager) StartAll() error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for port, vs := range m.segments {
		if err := vs.Start(); err != nil {
			return fmt.Errorf("failed to start segment on port %d: %w", port, err)
		}
	}

	return nil
}

// StopAll stops every segment.
func (m *Manager) StopAll() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, vs := range m.segments {
		vs.Stop()
	}
}

// Ports returns the listen ports of the active segments.
func (m *Manager) Ports() []int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ports := make([]int, 0, len(m.segments))
	for port := range m.segments {
		ports = append(ports, port)
	}

	return ports
}

// GetStats returns aggregated statistics across all segments.
func (m *Manager) GetStats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	totalFrames := uint64(0)
	totalBroadcast := uint64(0)
	totalUnicast := uint64(0)
	totalFlooded := uint64(0)
	totalDropped := uint64(0)
	totalPorts := 0
	totalMACEntries := 0

	segmentStats := make(map[string]interface{})

	for port, vs := range m.segments {
		stats := vs.GetStats()

		totalFrames += stats["total_frames"].(uint64)
		totalBroadcast += stats["broadcast_frames"].(uint64)
		totalUnicast += stats["unicast_frames"].(uint64)
		totalFlooded += stats["flooded_frames"].(uint64)
		totalDropped += stats["dropped_frames"].(uint64)
		totalPorts += stats["ports"].(int)
		totalMACEntries += stats["mac_entries"].(int)

		segmentStats[fmt.Sprintf("segment_%d", port)] = stats
	}

	return map[string]interface{}{
		"total_frames":      totalFrames,
		"broadcast_frames":  totalBroadcast,
		"unicast_frames":    totalUnicast,
		"flooded_frames":    totalFlooded,
		"dropped_frames":    totalDropped,
		"total_ports":       totalPorts,
		"total_mac_entries": totalMACEntries,
		"segments":          segmentStats,
		"segment_count":     len(m.segments),
	}
}
