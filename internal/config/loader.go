package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDebounce coalesces the burst of events editors produce on save.
const reloadDebounce = 100 * time.Millisecond

// Loader handles configuration loading, watching, and hot-reloading.
type Loader struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	errChan chan error
	wg      sync.WaitGroup
}

// NewLoader creates a loader for path. An empty path uses ConfigPath.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:    path,
		logger:  logger,
		errChan: make(chan error, 4),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string {
	return l.path
}

// Load reads, checks and validates the configuration file and makes it
// current.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) read() (*Config, error) {
	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("environment override: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Watch starts watching the configuration file for changes. A valid new
// configuration is delivered to OnChange callbacks; an invalid one is
// reported on Errors and the current configuration is kept.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Editors often replace the file, so the directory is watched.
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = watcher

	l.wg.Add(1)
	go l.watchLoop()
	return nil
}

func (l *Loader) watchLoop() {
	defer l.wg.Done()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-l.ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

// reload re-reads the file and notifies subscribers.
func (l *Loader) reload() {
	if l.ctx.Err() != nil {
		return
	}
	cfg, err := l.read()
	if err != nil {
		l.report(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	l.config = cfg
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	l.logger.Info("configuration reloaded", "path", l.path)
	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (l *Loader) report(err error) {
	l.logger.Warn("configuration watch error", "error", err)
	select {
	case l.errChan <- err:
	default:
	}
}

// OnChange registers a callback invoked with every reloaded configuration.
func (l *Loader) OnChange(cb func(*Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, cb)
	l.mu.Unlock()
}

// Errors returns a channel receiving reload and watch errors.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Close stops the watcher and releases resources.
func (l *Loader) Close() error {
	l.cancel()
	var err error
	if l.watcher != nil {
		err = l.watcher.Close()
	}
	l.wg.Wait()
	return err
}

// loadConfigFromFile reads and decodes path over the defaults. A missing
// file yields the defaults.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, formatOf(path))
}

func formatOf(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "yml" {
		return "yaml"
	}
	return ext
}

// Parse decodes a document in format ("toml", "json", "yaml"; anything else
// auto-detects) over the defaults after checking it against the schema.
func Parse(data []byte, format string) (*Config, error) {
	doc, format, err := decodeDocument(data, format)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(doc); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	}
	applyMappingDefaults(doc, cfg)
	return cfg, nil
}

// decodeDocument decodes data into a generic JSON-compatible tree and
// reports the format that succeeded.
func decodeDocument(data []byte, format string) (map[string]any, string, error) {
	switch format {
	case "toml", "json", "yaml":
		doc, err := decodeAs(data, format)
		if err != nil {
			return nil, "", fmt.Errorf("decode %s: %w", strings.ToUpper(format), err)
		}
		return doc, format, nil
	}
	for _, f := range []string{"toml", "json", "yaml"} {
		if doc, err := decodeAs(data, f); err == nil {
			return doc, f, nil
		}
	}
	return nil, "", fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

func decodeAs(data []byte, format string) (map[string]any, error) {
	raw := map[string]any{}
	var err error
	switch format {
	case "toml":
		_, err = toml.Decode(string(data), &raw)
	case "json":
		err = json.Unmarshal(data, &raw)
	case "yaml":
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, err
	}

	// Round-trip through JSON so TOML tables, YAML maps and timestamps all
	// become the plain types the schema validator accepts.
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// applyMappingDefaults sets the outer dead zone of mappings that leave it
// out to 1, so an omitted value means "full travel" rather than zero.
func applyMappingDefaults(doc map[string]any, cfg *Config) {
	profiles, _ := doc["profiles"].([]any)
	for i, p := range profiles {
		if i >= len(cfg.Profiles) {
			return
		}
		pm, _ := p.(map[string]any)
		subs, _ := pm["sub_profiles"].([]any)
		for j, s := range subs {
			if j >= len(cfg.Profiles[i].SubProfiles) {
				break
			}
			sm, _ := s.(map[string]any)
			mappings, _ := sm["mappings"].([]any)
			target := cfg.Profiles[i].SubProfiles[j].Mappings
			for k, m := range mappings {
				if k >= len(target) {
					break
				}
				mm, _ := m.(map[string]any)
				if _, ok := mm["dead_zone_outer"]; !ok {
					target[k].DeadZoneOuter = 1
				}
			}
		}
	}
}
