package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/CamStreamer/internal/logger"
	"gopkg.in/yaml.v3"
)

// Manager handles configuration persistence.
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager loads the config file, creating it with defaults when missing.
// Camera entries are normalized (names, defaults) and validated before the
// manager is returned.
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "camstreamer")
	actualConfigPath := filepath.Join(configDir, "config.yaml")
	if configFile != "" {
		actualConfigPath = configFile
		configDir = filepath.Dir(configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = getDefaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := m.normalize(); err != nil {
		return nil, err
	}

	return m, nil
}

// load reads and parses the config file.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	m.config = cfg
	return nil
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// normalize fills camera names from map keys, merges defaults and validates
// every entry.
func (m *Manager) normalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.ServerPort == 0 {
		m.config.ServerPort = 8080
	}
	if m.config.LogLevel == "" {
		m.config.LogLevel = "info"
	}

	for name, cam := range m.config.Cameras {
		cam = MergeDefaults(cam, m.config.Defaults)
		if cam.Name == "" {
			cam.Name = name
		}
		if err := cam.Validate(); err != nil {
			return err
		}
		m.config.Cameras[name] = cam
	}

	return nil
}

// MergeDefaults fills zero-valued fields of cam from defaults and applies the
// built-in fallbacks (2s reconnect, latest-mode buffering, placeholder text).
func MergeDefaults(cam, defaults Camera) Camera {
	if cam.Source == "" {
		cam.Source = defaults.Source
	}
	if cam.FPS == 0 {
		cam.FPS = defaults.FPS
	}
	if cam.ReconnectDelay == 0 {
		cam.ReconnectDelay = defaults.ReconnectDelay
	}
	if cam.Width == 0 && cam.Height == 0 {
		cam.Width = defaults.Width
		cam.Height = defaults.Height
	}
	if cam.Buffer == "" {
		cam.Buffer = defaults.Buffer
	}
	if cam.Capacity == 0 {
		cam.Capacity = defaults.Capacity
	}
	if !cam.Placeholder.Enabled && defaults.Placeholder.Enabled {
		cam.Placeholder = defaults.Placeholder
	}

	// built-in fallbacks
	if cam.ReconnectDelay == 0 {
		cam.ReconnectDelay = 2
	}
	if cam.Buffer == "" {
		cam.Buffer = BufferLatest
	}
	if cam.Buffer == BufferQueue && cam.Capacity == 0 {
		cam.Capacity = 8
	}
	if cam.Placeholder.Enabled && cam.Placeholder.Text == "" {
		cam.Placeholder.Text = "Device not available"
	}

	return cam
}

// getDefaults returns the default configuration.
func getDefaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Defaults: Camera{
			FPS:            10,
			ReconnectDelay: 2,
			Buffer:         BufferLatest,
		},
		Cameras: map[string]Camera{},
	}
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	cfg.Cameras = make(map[string]Camera, len(m.config.Cameras))
	for name, cam := range m.config.Cameras {
		cfg.Cameras[name] = cam
	}
	return &cfg
}

// GetConfigPath returns the path of the loaded config file.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetPort overrides the server port.
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ServerPort = port
}

// SetLogLevel overrides the log level.
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}
