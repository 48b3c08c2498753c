package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".rolecoach"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
	// ConfigEnv overrides the config file path
	ConfigEnv = "ROLECOACH_CONFIG"
)

// Transport names accepted in a context.
const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"
)

// Config represents the CLI configuration file
type Config struct {
	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	// configPath is the path to the config file
	configPath string
}

// Context holds the settings for one API account.
type Context struct {
	// Name is the context name
	Name string `yaml:"name"`

	// APIKey is the OpenAI API key used to mint ephemeral credentials
	// when no token URL is set
	APIKey string `yaml:"api_key,omitempty"`

	// TokenURL is the endpoint that issues ephemeral credentials
	TokenURL string `yaml:"token_url,omitempty"`

	// Model is the realtime model (optional)
	Model string `yaml:"model,omitempty"`

	// Voice overrides the scenario voice (optional)
	Voice string `yaml:"voice,omitempty"`

	// Transport is "webrtc" (default) or "websocket"
	Transport string `yaml:"transport,omitempty"`

	// ICEServers lists STUN/TURN URLs for WebRTC (optional)
	ICEServers []string `yaml:"ice_servers,omitempty"`
}

// DefaultConfigPath returns ROLECOACH_CONFIG or ~/.rolecoach/config.yaml.
func DefaultConfigPath() (string, error) {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultBaseDir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration at path, or at DefaultConfigPath when
// path is empty. A missing file yields an empty configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := &Config{
		Contexts:   make(map[string]*Context),
		configPath: path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Ensure contexts map is initialized
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		if ctx == nil {
			ctx = &Context{}
			cfg.Contexts[name] = ctx
		}
		ctx.Name = name
	}
	cfg.configPath = path

	return cfg, nil
}

// Save writes the configuration to disk, creating its directory.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// JournalDir returns the default directory for session recordings.
func (c *Config) JournalDir() string {
	return filepath.Join(c.Dir(), "journal")
}

// AddContext adds a new context
func (c *Config) AddContext(name string, ctx *Context) error {
	if name == "" {
		return fmt.Errorf("context name cannot be empty")
	}
	if _, ok := c.Contexts[name]; ok {
		return fmt.Errorf("context %q already exists", name)
	}
	if err := ctx.validate(); err != nil {
		return err
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// GetCurrentContext returns the current context
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set")
	}
	return c.GetContext(c.CurrentContext)
}

// ResolveContext returns the context by name, or current context if name is empty
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		return c.GetCurrentContext()
	}
	return c.GetContext(name)
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ContextKeys lists the keys accepted by Context.Set and Context.Get.
var ContextKeys = []string{"api_key", "token_url", "model", "voice", "transport", "ice_servers"}

// Set assigns one setting by its YAML key. ice_servers takes a
// comma-separated list.
func (ctx *Context) Set(key, value string) error {
	next := *ctx
	switch key {
	case "api_key":
		next.APIKey = value
	case "token_url":
		next.TokenURL = value
	case "model":
		next.Model = value
	case "voice":
		next.Voice = value
	case "transport":
		next.Transport = value
	case "ice_servers":
		next.ICEServers = nil
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				next.ICEServers = append(next.ICEServers, s)
			}
		}
	default:
		return fmt.Errorf("unknown key %q (want one of %s)", key, strings.Join(ContextKeys, ", "))
	}
	if err := next.validate(); err != nil {
		return err
	}
	*ctx = next
	return nil
}

// Get returns one setting by its YAML key. api_key is masked unless raw is
// set.
func (ctx *Context) Get(key string, raw bool) (string, error) {
	switch key {
	case "api_key":
		if raw {
			return ctx.APIKey, nil
		}
		return MaskAPIKey(ctx.APIKey), nil
	case "token_url":
		return ctx.TokenURL, nil
	case "model":
		return ctx.Model, nil
	case "voice":
		return ctx.Voice, nil
	case "transport":
		return ctx.TransportName(), nil
	case "ice_servers":
		return strings.Join(ctx.ICEServers, ","), nil
	}
	return "", fmt.Errorf("unknown key %q (want one of %s)", key, strings.Join(ContextKeys, ", "))
}

// TransportName returns the configured transport, defaulting to webrtc.
func (ctx *Context) TransportName() string {
	if ctx.Transport == "" {
		return TransportWebRTC
	}
	return ctx.Transport
}

func (ctx *Context) validate() error {
	switch ctx.Transport {
	case "", TransportWebRTC, TransportWebSocket:
		return nil
	}
	return fmt.Errorf("transport %q must be %s or %s", ctx.Transport, TransportWebRTC, TransportWebSocket)
}

// MaskAPIKey masks the API key for display
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
