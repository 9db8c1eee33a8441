// SPDX-License-Identifier: GPL-3.0-only

// Package dbus exposes the ambient brightness controller on the session bus.
package dbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/shini4i/ambient-brightness-daemon/internal/controller"
	"github.com/shini4i/ambient-brightness-daemon/internal/profile"
)

// ErrRateLimitExceeded is returned when trigger requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

const (
	// DefaultRateLimit is the sustained number of triggers per second.
	DefaultRateLimit = 1

	// DefaultRateBurst is the maximum burst size for triggers.
	DefaultRateBurst = 3
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.shini4i.AmbientBrightness"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/shini4i/AmbientBrightness"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.shini4i.AmbientBrightness"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="GetStatus">
      <arg name="ambient" type="d" direction="out"/>
      <arg name="target" type="u" direction="out"/>
      <arg name="source" type="s" direction="out"/>
    </method>
    <method name="RunCycle">
    </method>
    <method name="Recalibrate">
      <arg name="min" type="d" direction="out"/>
      <arg name="max" type="d" direction="out"/>
      <arg name="median" type="d" direction="out"/>
    </method>
    <signal name="CycleCompleted">
      <arg name="ambient" type="d"/>
      <arg name="target" type="u"/>
    </signal>
    <signal name="CalibrationChanged">
      <arg name="min" type="d"/>
      <arg name="max" type="d"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// Controller is the part of the controller the service drives.
// This allows for mocking in tests.
type Controller interface {
	// Trigger requests a control cycle without waiting for it.
	Trigger()

	// Recalibrate runs and saves a new calibration.
	Recalibrate(ctx context.Context) (profile.Profile, error)

	// LastResult returns the most recent completed cycle.
	LastResult() (controller.Result, error)
}

// Server implements the D-Bus service.
//
// Thread safety:
//   - The connMu mutex protects the D-Bus connection field for signal emission.
//   - Controller serializes cycles and calibrations itself.
type Server struct {
	conn        *dbus.Conn
	connMu      sync.RWMutex // Protects conn and ctx
	ctx         context.Context
	ctrl        Controller
	rateLimiter *rate.Limiter
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithRateLimit sets the trigger rate limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewServer creates a new D-Bus server driving ctrl.
func NewServer(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctx:         context.Background(),
		ctrl:        ctrl,
		rateLimiter: rate.NewLimiter(DefaultRateLimit, DefaultRateBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects to the session bus and exports the service. ctx bounds
// calibrations requested over the bus.
func (s *Server) Start(ctx context.Context) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	if err := conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.ctx = ctx
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// GetStatus returns the ambient reading, target percentage and profile
// source of the last completed cycle.
func (s *Server) GetStatus() (float64, uint32, string, *dbus.Error) {
	res, err := s.ctrl.LastResult()
	if err != nil {
		return 0, 0, "", dbus.MakeFailedError(err)
	}

	// #nosec G115 -- target is clamped to 5-100
	return res.Ambient, uint32(res.Target), string(res.Source), nil
}

// RunCycle requests an immediate control cycle. It returns before the cycle
// runs; completion is reported by the CycleCompleted signal.
func (s *Server) RunCycle() *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for RunCycle")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	s.ctrl.Trigger()
	log.Debug().Msg("Cycle requested over D-Bus")
	return nil
}

// Recalibrate runs a calibration burst and returns the new ambient bounds.
func (s *Server) Recalibrate() (float64, float64, float64, *dbus.Error) {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for Recalibrate")
		return 0, 0, 0, dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	s.connMu.RLock()
	ctx := s.ctx
	s.connMu.RUnlock()

	p, err := s.ctrl.Recalibrate(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Recalibration failed")
		return 0, 0, 0, dbus.MakeFailedError(err)
	}

	median := 0.0
	if p.AmbientMedian != nil {
		median = *p.AmbientMedian
	}
	return p.AmbientMin, p.AmbientMax, median, nil
}

// CycleCompleted emits the CycleCompleted signal.
func (s *Server) CycleCompleted(res controller.Result) {
	// #nosec G115 -- target is clamped to 5-100
	s.emit("CycleCompleted", res.Ambient, uint32(res.Target))
}

// CalibrationChanged emits the CalibrationChanged signal.
func (s *Server) CalibrationChanged(p profile.Profile) {
	s.emit("CalibrationChanged", p.AmbientMin, p.AmbientMax)
	log.Info().Float64("ambientMin", p.AmbientMin).Float64("ambientMax", p.AmbientMax).Msg("Calibration changed")
}

func (s *Server) emit(signal string, args ...any) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, InterfaceName+"."+signal, args...); err != nil {
		log.Error().Err(err).Str("signal", signal).Msg("Failed to emit signal")
	}
}
