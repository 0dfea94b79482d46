package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"starbase/server/services"
)

// ServerConfig holds server-wide configuration settings.
type ServerConfig struct {
	ListenAddr string          `yaml:"listen_addr"`
	Station    StationConfig   `yaml:"station"`
	Walls      WallsConfig     `yaml:"walls"`
	WebSocket  WebSocketConfig `yaml:"websocket"`
	Storage    StorageConfig   `yaml:"storage"`
	Pool       PoolConfig      `yaml:"pool"`
	Auth       AuthConfig      `yaml:"auth"`
}

// StationConfig describes the build field
type StationConfig struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// WallsConfig holds the wall rotation constants in degrees. They depend on
// how the wall art is authored, so they live in config rather than code.
type WallsConfig struct {
	DefaultOrientation int `yaml:"default_orientation"`
	StraightAlongY     int `yaml:"straight_along_y"`
	StraightAlongX     int `yaml:"straight_along_x"`

	// Corner keys: right_down, up_right, up_left, down_left
	Corner map[string]int `yaml:"corner"`

	// ThreeWay keys name the open side: open_left, open_down, open_right, open_up
	ThreeWay map[string]int `yaml:"three_way"`

	// Overrides replace the rotation for a full 8-bit mask value
	Overrides map[int]int `yaml:"overrides"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy.
	// Use "*" to allow all origins (not recommended for production).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // json, sqlite or postgres
	Path   string `yaml:"path"`   // json and sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// PoolConfig sizes the piece pool and its cleanup tick
type PoolConfig struct {
	Capacity            int `yaml:"capacity"`
	TrimBatch           int `yaml:"trim_batch"`
	TrimIntervalSeconds int `yaml:"trim_interval_seconds"`
}

// AuthConfig holds builder password settings
type AuthConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

var cornerKeys = map[string]services.NeighborMask{
	"right_down": services.MaskRight | services.MaskDown,
	"up_right":   services.MaskUp | services.MaskRight,
	"up_left":    services.MaskUp | services.MaskLeft,
	"down_left":  services.MaskDown | services.MaskLeft,
}

var threeWayKeys = map[string]services.NeighborMask{
	"open_left":  services.MaskUp | services.MaskRight | services.MaskDown,
	"open_down":  services.MaskUp | services.MaskRight | services.MaskLeft,
	"open_right": services.MaskUp | services.MaskDown | services.MaskLeft,
	"open_up":    services.MaskRight | services.MaskDown | services.MaskLeft,
}

// DefaultConfig returns a ServerConfig for a 16x16 station stored in a JSON file.
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr: ":8080",
		Station: StationConfig{
			Name:   "starbase",
			Width:  16,
			Height: 16,
		},
		Walls: WallsConfig{
			DefaultOrientation: 0,
			StraightAlongY:     0,
			StraightAlongX:     90,
			Corner: map[string]int{
				"right_down": 90,
				"up_right":   180,
				"up_left":    270,
				"down_left":  0,
			},
			ThreeWay: map[string]int{
				"open_left":  90,
				"open_down":  180,
				"open_right": 270,
				"open_up":    0,
			},
			Overrides: map[int]int{151: 180},
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: []string{}, // Same-origin only by default
			MaxMessageSize: 64 * 1024,
		},
		Storage: StorageConfig{
			Driver: "json",
			Path:   "db.json",
		},
		Pool: PoolConfig{
			Capacity:            256,
			TrimBatch:           32,
			TrimIntervalSeconds: 10,
		},
		Auth: AuthConfig{
			BcryptCost: 10,
		},
	}
}

// LoadConfig loads server configuration from a YAML file, then applies the
// PORT, DB_TYPE, DATABASE_URL and DB_FILE environment overrides.
// If the file doesn't exist, the defaults are used.
func LoadConfig(path string) (*ServerConfig, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return DefaultConfig(), err
			}
		case !os.IsNotExist(err):
			return config, err
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c *ServerConfig) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.ListenAddr = ":" + port
	}
	if driver := os.Getenv("DB_TYPE"); driver != "" {
		c.Storage.Driver = driver
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Storage.DSN = dsn
	}
	if file := os.Getenv("DB_FILE"); file != "" {
		c.Storage.Path = file
	}
}

// Validate rejects settings the server cannot start with
func (c *ServerConfig) Validate() error {
	if c.Station.Width <= 0 || c.Station.Height <= 0 {
		return fmt.Errorf("station size %dx%d must be positive", c.Station.Width, c.Station.Height)
	}
	if c.Station.Name == "" {
		return fmt.Errorf("station name must not be empty")
	}
	switch c.Storage.Driver {
	case "json", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	for key := range c.Walls.Corner {
		if _, ok := cornerKeys[key]; !ok {
			return fmt.Errorf("unknown corner rotation key %q", key)
		}
	}
	for key := range c.Walls.ThreeWay {
		if _, ok := threeWayKeys[key]; !ok {
			return fmt.Errorf("unknown three_way rotation key %q", key)
		}
	}
	for mask := range c.Walls.Overrides {
		if mask <= 0 || mask > 255 {
			return fmt.Errorf("override mask %d out of range 1-255", mask)
		}
	}
	return nil
}

// RotationRules converts the walls section for the shape table. Keys the
// file leaves out keep their default rotation.
func (w WallsConfig) RotationRules() services.RotationRules {
	rules := services.DefaultRotationRules()
	rules.DefaultOrientation = w.DefaultOrientation
	rules.StraightAlongY = w.StraightAlongY
	rules.StraightAlongX = w.StraightAlongX

	for key, degrees := range w.Corner {
		if mask, ok := cornerKeys[key]; ok {
			rules.Corner[mask] = degrees
		}
	}
	for key, degrees := range w.ThreeWay {
		if mask, ok := threeWayKeys[key]; ok {
			rules.ThreeWay[mask] = degrees
		}
	}
	if w.Overrides != nil {
		rules.Overrides = make(map[services.NeighborMask]int, len(w.Overrides))
		for mask, degrees := range w.Overrides {
			rules.Overrides[services.NeighborMask(mask)] = degrees
		}
	}
	return rules
}

// StationOptions builds the options both the authority and replicas use
func (c *ServerConfig) StationOptions() services.StationOptions {
	return services.StationOptions{
		Width:        c.Station.Width,
		Height:       c.Station.Height,
		Rotations:    c.Walls.RotationRules(),
		PoolCapacity: c.Pool.Capacity,
	}
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

// isSameOrigin checks if the origin matches the request host.
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // non-browser client
	}

	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
