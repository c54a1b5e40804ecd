package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/yeti47/screenrec/ccc/logging"
)

// FileProvider serves the Config stored at a path and reloads it whenever the file changes.
// Overrides are re-applied after every reload. A reload that fails to parse or validate
// keeps the previous settings.
type FileProvider struct {
	path      string
	overrides ConfigOverrides
	logger    logging.Logger

	mutex   sync.RWMutex
	current Config

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileProvider loads the config at path and starts watching it for changes.
func NewFileProvider(path string, overrides ConfigOverrides, logger logging.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = logging.NopLogger
	}

	path = filepath.Clean(path)
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.Override(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	// editors usually replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	p := &FileProvider{
		path:      path,
		overrides: overrides,
		logger:    logger,
		current:   *cfg,
		watcher:   watcher,
		done:      make(chan struct{}),
	}

	p.wg.Add(1)
	go p.watch()

	return p, nil
}

// GetSettings returns the most recently loaded configuration.
func (p *FileProvider) GetSettings() Config {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.current
}

func (p *FileProvider) watch() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				p.reload()
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (p *FileProvider) reload() {
	cfg, err := LoadConfig(p.path)
	if err != nil {
		p.logger.Warn("Failed to reload config, keeping previous settings", "path", p.path, "error", err)
		return
	}
	cfg.Override(p.overrides)
	if err := cfg.Validate(); err != nil {
		p.logger.Warn("Reloaded config is invalid, keeping previous settings", "path", p.path, "error", err)
		return
	}

	p.mutex.Lock()
	p.current = *cfg
	p.mutex.Unlock()

	p.logger.Info("Configuration reloaded", "path", p.path)
}

// Close stops watching the config file.
func (p *FileProvider) Close() error {
	close(p.done)
	err := p.watcher.Close()
	p.wg.Wait()
	return err
}
