// Package configfile loads and watches `.dynaform/config.toml`, the
// per-project configuration file SPEC_FULL.md §9 describes. Grounded on the
// teacher's internal/formula/parser.go and internal/recipes/recipes.go
// (github.com/BurntSushi/toml Unmarshal/Encoder) for the file format, and
// cmd/bd/show_display.go's fsnotify debounced-reload loop for live reload.
package configfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/dynaform/core/internal/storage"
)

// FileName is the config file's basename inside the project's .dynaform
// directory.
const FileName = "config.toml"

// Config is the parsed contents of .dynaform/config.toml.
type Config struct {
	// DSN selects the storage backend, passed through to storage.Config.DSN.
	DSN string `toml:"dsn"`

	ServerMode bool `toml:"server_mode"`
	ReadOnly   bool `toml:"read_only"`

	MigrationTimeoutSeconds int `toml:"migration_timeout_seconds"`
	RetryMaxElapsedSeconds  int `toml:"retry_max_elapsed_seconds"`

	// DefaultActor is used for write operations (CLI invocations, imports)
	// that don't otherwise have a bound current user.
	DefaultActor string `toml:"default_actor"`
}

// DefaultConfig returns the configuration used when no config.toml exists.
func DefaultConfig() *Config {
	return &Config{
		DSN:                     "memory://",
		MigrationTimeoutSeconds: 30,
		RetryMaxElapsedSeconds:  60,
	}
}

// Path returns the config file path inside projectDir's .dynaform directory.
func Path(projectDir string) string {
	return filepath.Join(projectDir, ".dynaform", FileName)
}

// Load reads and parses config.toml from projectDir, returning
// DefaultConfig if no file exists yet.
func Load(projectDir string) (*Config, error) {
	path := Path(projectDir)
	data, err := os.ReadFile(path) // #nosec G304 -- operator-controlled project path
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes c to projectDir's .dynaform/config.toml, creating the
// directory if needed.
func (c *Config) Save(projectDir string) error {
	dir := filepath.Join(projectDir, ".dynaform")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	f, err := os.Create(Path(projectDir)) // #nosec G304 -- operator-controlled project path
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// StorageConfig adapts c to the storage package's connection Config.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		DSN:               c.DSN,
		ServerMode:        c.ServerMode,
		ReadOnly:          c.ReadOnly,
		MigrationTimeout:  time.Duration(c.MigrationTimeoutSeconds) * time.Second,
		RetryMaxElapsed:   time.Duration(c.RetryMaxElapsedSeconds) * time.Second,
	}
}

// ExportYAML renders v as YAML, for export paths that want a
// human-diffable dump rather than TOML's more compact form (SPEC_FULL.md
// §9). No command of cmd/dynaform calls it.
func ExportYAML(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// Watcher reloads Config whenever config.toml changes on disk, debouncing
// rapid writes the way cmd/bd/show_display.go's fsnotify loop does.
type Watcher struct {
	projectDir string
	watcher    *fsnotify.Watcher
	onChange   func(*Config)
	debounce   time.Duration
}

// NewWatcher starts watching projectDir's .dynaform directory, invoking
// onChange with the freshly reloaded Config after each write settles.
func NewWatcher(projectDir string, onChange func(*Config)) (*Watcher, error) {
	dir := filepath.Join(projectDir, ".dynaform")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting config watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	w := &Watcher{projectDir: projectDir, watcher: fw, onChange: onChange, debounce: 500 * time.Millisecond}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != FileName || !event.Has(fsnotify.Write) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				cfg, err := Load(w.projectDir)
				if err != nil {
					return
				}
				w.onChange(cfg)
			})
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
