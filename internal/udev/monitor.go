// SPDX-License-Identifier: GPL-3.0-only

// Package udev watches for camera hot-plug events via netlink/udev.
package udev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// A larger buffer prevents ENOBUFS errors during USB hot-plug events.
	netlinkBufferSize = 2 * 1024 * 1024 // 2 MB

	// debounceWindow coalesces the burst of events a single camera produces
	// (one node for capture, one for metadata).
	debounceWindow = 2 * time.Second

	// debounceRetention is how long debounce entries are kept before cleanup.
	debounceRetention = time.Minute
)

const (
	// Subsystem is the kernel subsystem of V4L2 capture devices.
	Subsystem = "video4linux"

	// DevNamePattern matches V4L2 device nodes with or without the /dev prefix.
	DevNamePattern = `^(/dev/)?video[0-9]+$`
)

// EventType represents the type of device event.
type EventType int

const (
	// EventAdd indicates a camera was connected.
	EventAdd EventType = iota
	// EventRemove indicates a camera was disconnected.
	EventRemove
)

// Event represents a camera hot-plug event.
type Event struct {
	Type   EventType
	Device string
}

// EventHandler is called when a device event occurs.
type EventHandler func(event Event)

// RecoveryHandler is called when the monitor recovers from an error condition
// (e.g., netlink buffer overflow) during which events may have been lost.
type RecoveryHandler func()

// Monitor watches for camera connect/disconnect events.
type Monitor struct {
	conn            *netlink.UEventConn
	handler         EventHandler
	recoveryHandler RecoveryHandler
	quit            chan struct{}
	stopped         bool
	lastEvent       map[string]time.Time
	now             func() time.Time
	mu              sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler EventHandler) *Monitor {
	return &Monitor{
		handler:   handler,
		lastEvent: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetRecoveryHandler sets the handler called when the monitor recovers from errors.
func (m *Monitor) SetRecoveryHandler(handler RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryHandler = handler
}

// Start begins monitoring for device events.
// This method is non-blocking; events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.quit = m.conn.Monitor(queue, errs, m.createMatcher())
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher matches add/remove events of V4L2 device nodes.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	env := map[string]string{
		"SUBSYSTEM": "^" + Subsystem + "$",
		"DEVNAME":   DevNamePattern,
	}

	for _, action := range []string{"add", "remove"} {
		action := action
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env:    env,
		})
	}

	return rules
}

// processEvents handles incoming udev events.
func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			recoveryHandler := m.recoveryHandler
			m.mu.Unlock()
			if stopped {
				return
			}

			// Events may have been dropped, let the caller resynchronise.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, triggering recovery")
				if recoveryHandler != nil {
					go recoveryHandler()
				}
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize sets the receive buffer size for a socket.
// It first tries SO_RCVBUFFORCE (requires CAP_NET_ADMIN), then falls back to SO_RCVBUF.
func setSocketBufferSize(fd int, size int) error {
	err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size)
	if err == nil {
		return nil
	}
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// The udev library does not always wrap the errno.
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// debounceKey groups the nodes of one physical camera. ID_PATH is set by udev
// for every node of the same USB device; DEVNAME is the fallback.
func debounceKey(uevent netlink.UEvent) string {
	id := uevent.Env["ID_PATH"]
	if id == "" {
		id = uevent.Env["DEVNAME"]
	}
	return string(uevent.Action) + ":" + id
}

// shouldDebounce reports whether an event for key was seen within
// debounceWindow, and records the current one.
func (m *Monitor) shouldDebounce(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, t := range m.lastEvent {
		if now.Sub(t) > debounceRetention {
			delete(m.lastEvent, k)
		}
	}

	if last, ok := m.lastEvent[key]; ok && now.Sub(last) < debounceWindow {
		return true
	}
	m.lastEvent[key] = now
	return false
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	devname := uevent.Env["DEVNAME"]

	log.Debug().
		Str("action", string(uevent.Action)).
		Str("devpath", uevent.KObj).
		Str("devname", devname).
		Msg("Camera device event")

	var eventType EventType
	switch uevent.Action {
	case netlink.ADD:
		eventType = EventAdd
	case netlink.REMOVE:
		eventType = EventRemove
	default:
		return
	}

	if m.shouldDebounce(debounceKey(uevent)) {
		log.Debug().Str("devname", devname).Msg("Debounced camera event")
		return
	}

	if eventType == EventAdd {
		log.Info().Str("devname", devname).Msg("Camera connected")
	} else {
		log.Info().Str("devname", devname).Msg("Camera disconnected")
	}

	if m.handler != nil {
		m.handler(Event{Type: eventType, Device: devname})
	}
}
