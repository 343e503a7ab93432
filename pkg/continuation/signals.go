package continuation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fallbackPollInterval drives signal-file reloads when the filesystem
// watcher cannot be established.
const fallbackPollInterval = 5 * time.Second

// SignalSet holds the ordered phrase lists the judge scans for. Order
// matters: the first matching phrase decides.
type SignalSet struct {
	Complete   []string `yaml:"complete"`
	Incomplete []string `yaml:"incomplete"`
}

func defaultComplete() []string {
	return []string{
		"all done",
		"task complete",
		"task is complete",
		"everything is complete",
		"implementation is complete",
		"work is complete",
		"nothing left to do",
		"finished successfully",
	}
}

func defaultIncomplete() []string {
	return []string{
		"still need to",
		"still needs",
		"in progress",
		"todo:",
		"remaining work",
		"next steps:",
		"not yet implemented",
		"will continue",
		"partially implemented",
	}
}

// withDefaults fills empty lists in place.
func (s *SignalSet) withDefaults() {
	if len(s.Complete) == 0 {
		s.Complete = defaultComplete()
	}
	if len(s.Incomplete) == 0 {
		s.Incomplete = defaultIncomplete()
	}
}

// LoadSignals reads a YAML signals file. A missing file is not an error; it
// yields the defaults so the judge always has a working phrase set.
func LoadSignals(path string) (SignalSet, error) {
	var s SignalSet
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.withDefaults()
		return s, nil
	}
	if err != nil {
		return SignalSet{}, fmt.Errorf("read signals file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return SignalSet{}, fmt.Errorf("parse signals file %s: %w", path, err)
	}
	s.withDefaults()
	return s, nil
}

// Watch reloads the judge's signal set whenever the file at path changes.
// It prefers an fsnotify watcher and degrades to periodic polling when the
// watcher cannot be created. Blocks until ctx is done.
func (j *PhraseJudge) Watch(ctx context.Context, path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	reload := func() {
		signals, err := LoadSignals(path)
		if err != nil {
			logger.Warn("signals reload failed", "path", path, "err", err)
			return
		}
		j.SetSignals(signals)
		logger.Info("continuation signals reloaded", "path", path,
			"complete", len(signals.Complete), "incomplete", len(signals.Incomplete))
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(path)
	}
	if err != nil {
		logger.Warn("signals watcher unavailable, polling instead", "path", path, "err", err)
		j.pollLoop(ctx, path, reload)
		return
	}
	defer func() { _ = watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				reload()
			}
			// Editors that replace the file drop the watch; re-add it.
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				time.Sleep(100 * time.Millisecond)
				if addErr := watcher.Add(path); addErr == nil {
					reload()
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("signals watcher error", "err", werr)
		}
	}
}

// pollLoop reloads on a timer when mtime changes.
func (j *PhraseJudge) pollLoop(ctx context.Context, path string, reload func()) {
	var lastMod time.Time
	ticker := time.NewTicker(fallbackPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastMod) {
				lastMod = info.ModTime()
				reload()
			}
		}
	}
}
