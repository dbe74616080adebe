// Package config loads turnkeep.yaml and applies TK_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"turnkeep.app/internal/game"
)

type Config struct {
	Addr    string `yaml:"addr" env:"TK_ADDR"`
	DataDir string `yaml:"data_dir" env:"TK_DATA_DIR"`
	// DBPath defaults to <data_dir>/turnkeep.sqlite.
	DBPath    string `yaml:"db_path" env:"TK_DB_PATH"`
	DisableDB bool   `yaml:"disable_db" env:"TK_DISABLE_DB"`
	// EventsDir defaults to <data_dir>/events. "-" disables the event log.
	EventsDir string `yaml:"events_dir" env:"TK_EVENTS_DIR"`

	// FilePrefix starts every downloaded file name.
	FilePrefix     string `yaml:"file_prefix" env:"TK_FILE_PREFIX"`
	MaxSavedGames  int    `yaml:"max_saved_games" env:"TK_MAX_SAVED_GAMES"`
	MaxScreenshots int    `yaml:"max_screenshots" env:"TK_MAX_SCREENSHOTS"`
	MaxImportBytes int64  `yaml:"max_import_bytes" env:"TK_MAX_IMPORT_BYTES"`

	Rules   RulesSpec    `yaml:"rules"`
	Actions []ActionSpec `yaml:"actions"`
}

type RulesSpec struct {
	StartFood       int `yaml:"start_food" env:"TK_START_FOOD"`
	StartPleasure   int `yaml:"start_pleasure" env:"TK_START_PLEASURE"`
	StartHealth     int `yaml:"start_health" env:"TK_START_HEALTH"`
	StartGoldMax    int `yaml:"start_gold_max" env:"TK_START_GOLD_MAX"`
	HealthThreshold int `yaml:"health_threshold" env:"TK_HEALTH_THRESHOLD"`
	GoldPenalty     int `yaml:"gold_penalty" env:"TK_GOLD_PENALTY"`
	TotalTurns      int `yaml:"total_turns" env:"TK_TOTAL_TURNS"`
	MaxPlayers      int `yaml:"max_players" env:"TK_MAX_PLAYERS"`
	MaxUndo         int `yaml:"max_undo" env:"TK_MAX_UNDO"`
}

type ActionSpec struct {
	Name             string  `yaml:"name"`
	Color            string  `yaml:"color"`
	Min              int     `yaml:"min"`
	Max              int     `yaml:"max"`
	PointStyle       string  `yaml:"point_style,omitempty"`
	PointRadius      float64 `yaml:"point_radius,omitempty"`
	PointBorderWidth float64 `yaml:"point_border_width,omitempty"`
}

// Load reads path (when non-empty) over the defaults, then the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func Defaults() Config {
	r := game.DefaultRules()
	return Config{
		Addr:           ":8080",
		DataDir:        "./data",
		FilePrefix:     "acciones",
		MaxSavedGames:  100,
		MaxScreenshots: 20,
		MaxImportBytes: 1 << 20,
		Rules: RulesSpec{
			StartFood:       r.StartFood,
			StartPleasure:   r.StartPleasure,
			StartHealth:     r.StartHealth,
			StartGoldMax:    r.StartGoldMax,
			HealthThreshold: r.HealthThreshold,
			GoldPenalty:     r.GoldPenalty,
			TotalTurns:      r.TotalTurns,
			MaxPlayers:      r.MaxPlayers,
			MaxUndo:         r.MaxUndo,
		},
		Actions: []ActionSpec{
			{Name: "work", Color: "#4e79a7", Min: 0, Max: 10, PointStyle: "rect", PointRadius: 6, PointBorderWidth: 1},
			{Name: "eat", Color: "#f28e2b", Min: 0, Max: 10, PointStyle: "circle", PointRadius: 6, PointBorderWidth: 1},
			{Name: "rest", Color: "#59a14f", Min: 0, Max: 10, PointStyle: "triangle", PointRadius: 6, PointBorderWidth: 1},
			{Name: "play", Color: "#e15759", Min: 0, Max: 10, PointStyle: "star", PointRadius: 6, PointBorderWidth: 1},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Addr = strings.TrimSpace(c.Addr)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.FilePrefix = strings.TrimSpace(c.FilePrefix)
	if c.FilePrefix == "" {
		c.FilePrefix = "acciones"
	}
	if strings.TrimSpace(c.DBPath) == "" && c.DataDir != "" {
		c.DBPath = filepath.Join(c.DataDir, "turnkeep.sqlite")
	}
	if strings.TrimSpace(c.EventsDir) == "" && c.DataDir != "" {
		c.EventsDir = filepath.Join(c.DataDir, "events")
	}
	for i := range c.Actions {
		a := &c.Actions[i]
		a.Name = strings.TrimSpace(a.Name)
		if a.PointStyle == "" {
			a.PointStyle = "circle"
		}
		if a.PointRadius == 0 {
			a.PointRadius = 6
		}
		if a.PointBorderWidth == 0 {
			a.PointBorderWidth = 1
		}
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if !c.DisableDB && c.DBPath == "" {
		return errors.New("db_path (or data_dir) is required unless disable_db is set")
	}
	if strings.ContainsAny(c.FilePrefix, `/\`) {
		return fmt.Errorf("file_prefix %q must not contain path separators", c.FilePrefix)
	}
	if c.MaxSavedGames < 0 || c.MaxScreenshots < 0 {
		return errors.New("capacities must be >= 0")
	}
	if c.MaxImportBytes <= 0 {
		return errors.New("max_import_bytes must be > 0")
	}
	r := c.Rules
	if r.StartFood < 0 || r.StartPleasure < 0 || r.StartHealth < 0 || r.StartGoldMax < 0 {
		return errors.New("rules: start values must be >= 0")
	}
	if r.GoldPenalty < 0 || r.HealthThreshold < 0 {
		return errors.New("rules: health_threshold and gold_penalty must be >= 0")
	}
	if r.TotalTurns <= 0 {
		return errors.New("rules: total_turns must be > 0")
	}
	if r.MaxPlayers <= 0 {
		return errors.New("rules: max_players must be > 0")
	}
	if r.MaxUndo < 0 {
		return errors.New("rules: max_undo must be >= 0")
	}
	if len(c.Actions) == 0 {
		return errors.New("at least one action is required")
	}
	seen := map[string]bool{}
	for _, a := range c.Actions {
		if a.Name == "" {
			return errors.New("action name is required")
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate action: %s", a.Name)
		}
		seen[a.Name] = true
		if a.Min < 0 || a.Max < a.Min {
			return fmt.Errorf("action %s: need 0 <= min <= max", a.Name)
		}
	}
	return nil
}

func (c Config) GameRules() game.Rules {
	r := c.Rules
	return game.Rules{
		StartFood:       r.StartFood,
		StartPleasure:   r.StartPleasure,
		StartHealth:     r.StartHealth,
		StartGoldMax:    r.StartGoldMax,
		HealthThreshold: r.HealthThreshold,
		GoldPenalty:     r.GoldPenalty,
		TotalTurns:      r.TotalTurns,
		MaxPlayers:      r.MaxPlayers,
		MaxUndo:         r.MaxUndo,
	}
}

func (c Config) ActionSpecs() []game.ActionSpec {
	out := make([]game.ActionSpec, 0, len(c.Actions))
	for _, a := range c.Actions {
		out = append(out, game.ActionSpec{
			Name:             a.Name,
			Color:            a.Color,
			Min:              a.Min,
			Max:              a.Max,
			PointStyle:       a.PointStyle,
			PointRadius:      a.PointRadius,
			PointBorderWidth: a.PointBorderWidth,
		})
	}
	return out
}
