// SPDX-License-Identifier: MIT

// Package config implements the general settings store backed by a flat
// JSON file. Missing keys are backfilled from the built-in default set so
// upgrades never leave the UI without a value.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/gamelinkhq/gamelink/internal/log"
)

// Well-known settings keys.
const (
	KeyUIHTTPPort  = "uihttpport"
	KeyMDNS        = "mdns"
	KeyCertificate = "certificate"
	KeyKey         = "key"
)

func defaults() map[string]any {
	return map[string]any{
		"defaultver":             2,
		"virtualdisplay":         false,
		"customresolutionandfps": true,
		"width":                  0,
		"height":                 0,
		"fps":                    0,
		"bitrate":                0,
		"vsync":                  true,
		"gameopts":               true,
		"hostaudio":              false,
		"multicontroller":        true,
		"mdns":                   true,
		"quitAppAfter":           false,
		"mouseacceleration":      false,
		"abstouchmode":           true,
		"framepacing":            true,
		"connwarnings":           true,
		"richpresence":           true,
		"gamepadmouse":           true,
		"detectnetblocking":      true,
		"showperfoverlay":        false,
		"packetsize":             0,
		"swapmousebuttons":       false,
		"muteonfocusloss":        false,
		"backgroundgamepad":      false,
		"reversescroll":          false,
		"swapfacebuttons":        false,
		"keepawake":              true,
		"hdr":                    false,
		"virtualdisplaymode":     2,
		"capturesyskeys":         1,
		"audiocfg":               0,
		"videocfg":               0,
		"videodec":               1,
		"windowmode":             0,
		"uidisplaymode":          0,
		"language":               0,
		"uihttpport":             51343,
		"terminateAppTime":       0,
		"certificate":            "",
		"key":                    "",
	}
}

// Store is the process-wide settings holder. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
}

// Load reads the settings file at path, creating it from defaults when it
// does not exist. Keys missing from an existing file are backfilled and the
// file is re-saved.
func Load(path string) (*Store, error) {
	s := &Store{path: path, values: defaults()}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	stored := make(map[string]any)
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}

	backfilled := false
	for key, value := range s.values {
		if _, ok := stored[key]; !ok {
			stored[key] = value
			backfilled = true
		}
	}
	s.values = stored
	if backfilled {
		logger := log.WithComponent("config")
		logger.Info().
			Str("event", "config.backfilled").
			Str("path", path).
			Msg("added missing settings keys from defaults")
		if err := s.save(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// save writes the current values atomically. Caller must not hold mu in
// write mode from a different goroutine; save takes a read snapshot itself.
func (s *Store) save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.values, "", "    ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := renameio.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write settings %s: %w", s.path, err)
	}
	return nil
}

// All returns a copy of every stored value.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Merge applies the given values over the stored set and persists.
func (s *Store) Merge(values map[string]any) error {
	s.mu.Lock()
	for k, v := range values {
		s.values[k] = v
	}
	s.mu.Unlock()
	return s.save()
}

// Reset restores the default set, preserving the stored client identity.
func (s *Store) Reset() error {
	s.mu.Lock()
	cert := s.values[KeyCertificate]
	key := s.values[KeyKey]
	s.values = defaults()
	s.values[KeyCertificate] = cert
	s.values[KeyKey] = key
	s.mu.Unlock()
	return s.save()
}

// SetString stores one string value and persists.
func (s *Store) SetString(key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return s.save()
}

// String returns the string value for key, or fallback.
func (s *Store) String(key, fallback string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key].(string); ok {
		return v
	}
	return fallback
}

// Bool returns the bool value for key, or fallback.
func (s *Store) Bool(key string, fallback bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key].(bool); ok {
		return v
	}
	return fallback
}

// Int returns the int value for key, or fallback. JSON numbers decode as
// float64, so both representations are accepted.
func (s *Store) Int(key string, fallback int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch v := s.values[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
