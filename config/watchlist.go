package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"marketwatch/internal/signal"

	"gopkg.in/yaml.v3"
)

// WatchList is the persisted set of followed symbols.
type WatchList struct {
	Symbols []string `yaml:"symbols"`
	Active  string   `yaml:"active"`
	Model   string   `yaml:"model"`
}

// LoadWatchList reads the YAML file at path. A missing file yields a list
// built from fallback symbols and model.
func LoadWatchList(path string, fallback []string, model string) (*WatchList, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		wl := &WatchList{Symbols: append([]string(nil), fallback...), Model: model}
		wl.normalize()
		return wl, wl.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("read watch list '%s': %w", path, err)
	}

	var wl WatchList
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parse watch list '%s': %w", path, err)
	}
	if wl.Model == "" {
		wl.Model = model
	}
	wl.normalize()
	if err := wl.Validate(); err != nil {
		return nil, fmt.Errorf("watch list validation failed: %w", err)
	}
	return &wl, nil
}

// SaveWatchList writes wl to path, creating parent directories.
func SaveWatchList(path string, wl *WatchList) error {
	if err := wl.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(wl)
	if err != nil {
		return fmt.Errorf("marshal watch list: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watch list dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write watch list '%s': %w", path, err)
	}
	return nil
}

// Validate checks the list is usable.
func (wl *WatchList) Validate() error {
	if len(wl.Symbols) == 0 {
		return fmt.Errorf("watch list must contain at least one symbol")
	}
	seen := make(map[string]bool, len(wl.Symbols))
	for i, s := range wl.Symbols {
		if s == "" {
			return fmt.Errorf("symbol %d cannot be empty", i)
		}
		if seen[s] {
			return fmt.Errorf("duplicate symbol %q", s)
		}
		seen[s] = true
	}
	if !seen[wl.Active] {
		return fmt.Errorf("active symbol %q is not in the watch list", wl.Active)
	}
	if _, err := signal.New(wl.Model); err != nil {
		return err
	}
	return nil
}

// Contains reports whether symbol is followed.
func (wl *WatchList) Contains(symbol string) bool {
	for _, s := range wl.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Add appends a symbol if it is not already present.
func (wl *WatchList) Add(symbol string) bool {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || wl.Contains(symbol) {
		return false
	}
	wl.Symbols = append(wl.Symbols, symbol)
	if wl.Active == "" {
		wl.Active = symbol
	}
	return true
}

// Remove drops a symbol. The last symbol cannot be removed. Removing the
// active symbol activates the first remaining one.
func (wl *WatchList) Remove(symbol string) bool {
	if len(wl.Symbols) <= 1 {
		return false
	}
	for i, s := range wl.Symbols {
		if s != symbol {
			continue
		}
		wl.Symbols = append(wl.Symbols[:i], wl.Symbols[i+1:]...)
		if wl.Active == symbol {
			wl.Active = wl.Symbols[0]
		}
		return true
	}
	return false
}

// Select makes symbol active, adding it first if needed.
func (wl *WatchList) Select(symbol string) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return
	}
	wl.Add(symbol)
	wl.Active = symbol
}

func (wl *WatchList) normalize() {
	out := wl.Symbols[:0]
	for _, s := range wl.Symbols {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	wl.Symbols = out
	wl.Active = strings.TrimSpace(wl.Active)
	if wl.Active == "" && len(wl.Symbols) > 0 {
		wl.Active = wl.Symbols[0]
	}
}
