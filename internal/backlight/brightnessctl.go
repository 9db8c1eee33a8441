// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes brightnessctl with args and returns its standard output.
type Runner func(args ...string) ([]byte, error)

// Brightnessctl controls the backlight through the brightnessctl utility.
type Brightnessctl struct {
	device string
	run    Runner
}

// BrightnessctlOption configures a Brightnessctl.
type BrightnessctlOption func(*Brightnessctl)

// WithRunner replaces command execution, for testing.
func WithRunner(run Runner) BrightnessctlOption {
	return func(b *Brightnessctl) {
		b.run = run
	}
}

// WithDeviceName passes --device to every invocation.
func WithDeviceName(name string) BrightnessctlOption {
	return func(b *Brightnessctl) {
		b.device = name
	}
}

// NewBrightnessctl returns ErrUnavailable when brightnessctl is not on PATH
// and no runner was supplied.
func NewBrightnessctl(opts ...BrightnessctlOption) (*Brightnessctl, error) {
	b := &Brightnessctl{}
	for _, opt := range opts {
		opt(b)
	}
	if b.run != nil {
		return b, nil
	}

	bin, err := exec.LookPath("brightnessctl")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	b.run = func(args ...string) ([]byte, error) {
		return exec.Command(bin, args...).Output()
	}
	return b, nil
}

// Read parses the machine-readable output, e.g.
// "intel_backlight,backlight,9600,50%,19200".
func (b *Brightnessctl) Read() (int, error) {
	out, err := b.exec("-m")
	if err != nil {
		return 0, err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return 0, fmt.Errorf("unexpected brightnessctl output %q", line)
	}
	percent, err := strconv.Atoi(strings.TrimSuffix(fields[3], "%"))
	if err != nil {
		return 0, fmt.Errorf("unexpected brightnessctl output %q: %w", line, err)
	}
	return percent, nil
}

// Apply runs "brightnessctl set N%".
func (b *Brightnessctl) Apply(percent int) error {
	_, err := b.exec("set", strconv.Itoa(percent)+"%")
	return err
}

func (b *Brightnessctl) exec(args ...string) ([]byte, error) {
	if b.device != "" {
		args = append([]string{"--device=" + b.device}, args...)
	}
	out, err := b.run(args...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("brightnessctl %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("brightnessctl %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}
