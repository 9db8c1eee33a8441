// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultSysfsRoot is the kernel backlight class directory.
const DefaultSysfsRoot = "/sys/class/backlight"

// Sysfs controls a kernel backlight through its brightness and
// max_brightness attributes.
type Sysfs struct {
	dir string
}

// NewSysfs selects the backlight named name under root. An empty name picks
// the first backlight in lexical order.
func NewSysfs(root, name string) (*Sysfs, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}

	if name != "" {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, "max_brightness")); err != nil {
			return nil, fmt.Errorf("%w: backlight %s: %w", ErrUnavailable, name, err)
		}
		return &Sysfs{dir: dir}, nil
	}

	matches, err := filepath.Glob(filepath.Join(root, "*", "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no backlight under %s", ErrUnavailable, root)
	}
	sort.Strings(matches)
	return &Sysfs{dir: filepath.Dir(matches[0])}, nil
}

// Dir returns the selected backlight directory.
func (s *Sysfs) Dir() string {
	return s.dir
}

// Read returns brightness*100/max_brightness, truncated.
func (s *Sysfs) Read() (int, error) {
	maxValue, err := s.readInt("max_brightness")
	if err != nil {
		return 0, err
	}
	if maxValue <= 0 {
		return 0, fmt.Errorf("invalid max_brightness %d in %s", maxValue, s.dir)
	}
	cur, err := s.readInt("brightness")
	if err != nil {
		return 0, err
	}
	return int(cur * 100 / maxValue), nil
}

// Apply writes max_brightness*percent/100.
func (s *Sysfs) Apply(percent int) error {
	maxValue, err := s.readInt("max_brightness")
	if err != nil {
		return err
	}
	value := maxValue * int64(percent) / 100
	path := filepath.Join(s.dir, "brightness")
	if err := os.WriteFile(path, []byte(strconv.FormatInt(value, 10)), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *Sysfs) readInt(attr string) (int64, error) {
	path := filepath.Join(s.dir, attr)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return v, nil
}
