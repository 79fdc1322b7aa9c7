package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"plugin"
	"sync"

	"go.uber.org/zap"

	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

// Manifest describes plugins.json.
type Manifest struct {
	Plugins []Entry `json:"plugins"`
}

type Entry struct {
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Path    string         `json:"path"`
	Symbol  string         `json:"symbol"`
	Config  map[string]any `json:"config,omitempty"`
}

// Opener resolves a manifest entry to a plugin instance.
type Opener func(e Entry) (sdk.Plugin, error)

// Manager owns the loaded publisher plugins.
type Manager struct {
	log  *zap.Logger
	pub  sdk.Publisher
	open Opener

	mu      sync.Mutex
	plugins map[string]sdk.Plugin
}

func NewManager(log *zap.Logger, pub sdk.Publisher) *Manager {
	return &Manager{
		log:     log.With(zap.String("component", "plugins")),
		pub:     pub,
		open:    openShared,
		plugins: make(map[string]sdk.Plugin),
	}
}

// WithOpener replaces the shared-object loader.
func (m *Manager) WithOpener(o Opener) *Manager {
	m.open = o
	return m
}

// LoadManifest reads path and initialises every plugin not already loaded.
// A missing manifest is not an error. Individual plugin failures are logged.
func (m *Manager) LoadManifest(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("plugins: %s: %w", path, err)
	}
	for _, e := range manifest.Plugins {
		if err := m.load(e); err != nil {
			m.log.Error("failed to load plugin",
				zap.String("name", e.Name),
				zap.Error(err))
		}
	}
	return nil
}

// Register initialises an in-process plugin under name.
func (m *Manager) Register(name, version string, p sdk.Plugin, cfg map[string]any) error {
	return m.start(Entry{Name: name, Version: version, Config: cfg}, p)
}

func (m *Manager) load(e Entry) error {
	if e.Name == "" {
		return errors.New("plugin entry without name")
	}
	if m.Loaded(e.Name) {
		return nil
	}
	p, err := m.open(e)
	if err != nil {
		return err
	}
	return m.start(e, p)
}

func (m *Manager) start(e Entry, p sdk.Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plugins[e.Name]; ok {
		return fmt.Errorf("plugin %q already loaded", e.Name)
	}
	ctx := newPluginContext(m.log.With(zap.String("plugin", e.Name)), m.pub, e.Config)
	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("init %s: %w", e.Name, err)
	}
	m.plugins[e.Name] = p
	m.log.Info("plugin loaded",
		zap.String("name", e.Name),
		zap.String("version", e.Version))
	return nil
}

func (m *Manager) Loaded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.plugins[name]
	return ok
}

// Reload picks up plugins newly added to the manifest. Go plugins cannot be
// unloaded, so removed entries keep running until restart.
func (m *Manager) Reload(path string) {
	if err := m.LoadManifest(path); err != nil {
		m.log.Warn("plugin reload failed", zap.Error(err))
	}
}

func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, p := range m.plugins {
		if err := p.Stop(); err != nil {
			m.log.Warn("plugin stop failed", zap.String("name", name), zap.Error(err))
		}
		delete(m.plugins, name)
	}
}

func openShared(e Entry) (sdk.Plugin, error) {
	so, err := plugin.Open(e.Path)
	if err != nil {
		return nil, err
	}
	symbol := e.Symbol
	if symbol == "" {
		symbol = "Plugin"
	}
	sym, err := so.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	switch p := sym.(type) {
	case sdk.Plugin:
		return p, nil
	case *sdk.Plugin:
		return *p, nil
	default:
		return nil, fmt.Errorf("%s: symbol %s does not implement sdk.Plugin", e.Path, symbol)
	}
}
