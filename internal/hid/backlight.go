// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Backlight controls one display, opening it on first use and reopening it
// after an I/O error (for example when the display was unplugged and plugged
// back in).
type Backlight struct {
	serial  string
	opener  func(serial string) (Device, error)
	mu      sync.Mutex
	display *Display
}

// BacklightOption is a functional option for configuring a Backlight.
type BacklightOption func(*Backlight)

// WithOpener sets a custom device opener for testing.
func WithOpener(fn func(serial string) (Device, error)) BacklightOption {
	return func(b *Backlight) {
		b.opener = fn
	}
}

// NewBacklight returns a backlight for the display with the given serial.
// An empty serial selects the first display found.
func NewBacklight(serial string, opts ...BacklightOption) *Backlight {
	b := &Backlight{
		serial: serial,
		opener: OpenStudioDisplay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Read returns the current brightness percentage.
func (b *Backlight) Read() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	display, err := b.open()
	if err != nil {
		return 0, err
	}
	percent, err := display.Read()
	if err != nil {
		b.drop(err)
		return 0, err
	}
	return percent, nil
}

// Apply sets the brightness percentage.
func (b *Backlight) Apply(percent int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	display, err := b.open()
	if err != nil {
		return err
	}
	if err := display.Apply(percent); err != nil {
		b.drop(err)
		return err
	}
	return nil
}

// Close closes the display if it is open.
func (b *Backlight) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.display == nil {
		return nil
	}
	err := b.display.Close()
	b.display = nil
	return err
}

func (b *Backlight) open() (*Display, error) {
	if b.display != nil {
		return b.display, nil
	}
	device, err := b.opener(b.serial)
	if err != nil {
		return nil, fmt.Errorf("failed to open display: %w", err)
	}
	b.display = NewDisplay(device)
	log.Info().Str("serial", b.display.Serial()).Str("product", device.Info().Product).Msg("Display connected")
	return b.display, nil
}

// drop closes the current handle so the next call reopens the display.
func (b *Backlight) drop(cause error) {
	log.Warn().Err(cause).Str("serial", b.display.Serial()).Msg("Display I/O failed, reopening on next use")
	if err := b.display.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close display")
	}
	b.display = nil
}
