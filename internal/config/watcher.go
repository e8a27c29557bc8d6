package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-cli/internal/logger"
)

// debounceWindow absorbs the burst of write events an editor's
// save-then-rename produces into a single reload.
const debounceWindow = 300 * time.Millisecond

// NoiseRuleFile is the external rule list shape the Noise Flagger hot-reloads
// from, per §4.4's "core must load rules from an external list".
type NoiseRuleFile struct {
	Rules []NoiseRuleEntry `json:"rules"`
}

// NoiseRuleEntry mirrors services.NoiseRule's JSON-serializable shape; the
// config package stays free of a services import by re-declaring it here and
// letting the caller translate.
type NoiseRuleEntry struct {
	Pattern string   `json:"pattern,omitempty"`
	Senders []string `json:"senders,omitempty"`
}

// NoiseRulesWatcher watches a single noise-rules file and invokes onReload
// with its parsed contents on every debounced write.
type NoiseRulesWatcher struct {
	path     string
	onReload func(NoiseRuleFile)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewNoiseRulesWatcher creates a watcher for path. onReload is called once
// synchronously from Start if path already exists, then again on every
// subsequent debounced write.
func NewNoiseRulesWatcher(path string, onReload func(NoiseRuleFile)) *NoiseRulesWatcher {
	return &NoiseRulesWatcher{
		path:     path,
		onReload: onReload,
		done:     make(chan struct{}),
	}
}

// Start loads the current file (if any) and begins watching its directory
// for subsequent writes. Call Stop to shut down.
func (w *NoiseRulesWatcher) Start() error {
	if w.path == "" {
		close(w.done)
		return nil
	}

	w.loadAndReload()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop()
	logger.Info("config: watching %s for noise rule changes", w.path)
	return nil
}

// Stop shuts down the watcher and waits for its goroutine to exit.
func (w *NoiseRulesWatcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *NoiseRulesWatcher) loop() {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounceWindow)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.loadAndReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config: noise rules watcher error: %v", err)
		}
	}
}

func (w *NoiseRulesWatcher) loadAndReload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("config: reading noise rules %s: %v", w.path, err)
		}
		return
	}

	var parsed NoiseRuleFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		logger.Warn("config: invalid noise rules file %s: %v", w.path, err)
		return
	}

	if w.onReload != nil {
		w.onReload(parsed)
	}
}
