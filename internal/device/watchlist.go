package device

import (
	"context"
	"errors"
	"fmt"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// WatchList assembles the set of devices to monitor from the configured
// device list and the persisted watch list.
type WatchList struct {
	repo   Repository
	logger Logger
}

// NewWatchList creates a WatchList. repo may be nil when persistence is disabled.
func NewWatchList(repo Repository) *WatchList {
	return &WatchList{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the watch list.
func (w *WatchList) SetLogger(logger Logger) {
	w.logger = logger
}

// Load returns the devices to monitor.
//
// Configured names come first, in configuration order, and are recorded in
// the store so they survive a configuration edit. Enabled stored devices that
// the configuration does not mention follow in storage order. Stored devices
// that are disabled are skipped even when configured.
//
// Malformed configured names are logged and skipped (the valid ones are kept).
// A store failure is returned together with the configured devices.
func (w *WatchList) Load(ctx context.Context, lines []string) ([]WatchedDevice, error) {
	names, errs := ParseNameList(lines)
	for _, err := range errs {
		w.logger.Error("ignoring device list entry", "error", err)
	}

	configured := make([]WatchedDevice, 0, len(names))
	for _, n := range names {
		configured = append(configured, WatchedDevice{Name: n, Enabled: true})
	}
	if w.repo == nil {
		return configured, nil
	}

	stored, err := w.repo.List(ctx)
	if err != nil {
		return configured, fmt.Errorf("loading stored watch list: %w", err)
	}
	byName := make(map[string]WatchedDevice, len(stored))
	for _, d := range stored {
		byName[d.Name] = d
	}

	var result []WatchedDevice
	inConfig := make(map[string]bool, len(configured))
	for _, d := range configured {
		inConfig[d.Name] = true
		if s, ok := byName[d.Name]; ok {
			if !s.Enabled {
				w.logger.Info("device disabled in store, not monitoring", "device", d.Name)
				continue
			}
			result = append(result, s)
			continue
		}
		if err := w.repo.Upsert(ctx, &d); err != nil {
			w.logger.Warn("failed to record configured device", "device", d.Name, "error", err)
		}
		result = append(result, d)
	}

	for _, s := range stored {
		if inConfig[s.Name] || !s.Enabled {
			continue
		}
		result = append(result, s)
	}
	return result, nil
}

// Remember stores a setting, ignoring a missing store.
func (w *WatchList) Remember(ctx context.Context, key, value string) error {
	if w.repo == nil {
		return nil
	}
	return w.repo.SetSetting(ctx, key, value)
}

// Recall returns a stored setting. ok is false when the store is missing
// or the key was never stored.
func (w *WatchList) Recall(ctx context.Context, key string) (value string, ok bool) {
	if w.repo == nil {
		return "", false
	}
	v, err := w.repo.GetSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			w.logger.Warn("failed to read setting", "key", key, "error", err)
		}
		return "", false
	}
	return v, true
}
