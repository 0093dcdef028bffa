// Package config provides Viper-based configuration loading for the hunting bot.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/huntbot/internal/hunt"
	"github.com/cory-johannsen/huntbot/internal/hunt/priority"
	"github.com/cory-johannsen/huntbot/internal/hunt/schedule"
	"github.com/cory-johannsen/huntbot/internal/hunt/spatial"
	"github.com/cory-johannsen/huntbot/internal/hunt/target"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Enabled turns on loading and persisting behavior rules in PostgreSQL.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// IndexConfig holds spatial index settings.
type IndexConfig struct {
	CellSize           float64       `mapstructure:"cell_size"`
	TTL                time.Duration `mapstructure:"ttl"`
	ScanRadiusX        float64       `mapstructure:"scan_radius_x"`
	ScanRadiusY        float64       `mapstructure:"scan_radius_y"`
	IncludeOtherFloors bool          `mapstructure:"include_other_floors"`
}

// ScoringConfig holds priority weights and the score cache TTL.
type ScoringConfig struct {
	Health      float64       `mapstructure:"health"`
	Distance    float64       `mapstructure:"distance"`
	Danger      float64       `mapstructure:"danger"`
	Priority    float64       `mapstructure:"priority"`
	Attacking   float64       `mapstructure:"attacking"`
	MaxDistance float64       `mapstructure:"max_distance"`
	TTL         time.Duration `mapstructure:"ttl"`
}

// TargetingConfig holds target hysteresis settings.
type TargetingConfig struct {
	// Policy is one of "delay_and_margin", "delay", "margin".
	Policy      string        `mapstructure:"policy"`
	SwitchDelay time.Duration `mapstructure:"switch_delay"`
	Margin      float64       `mapstructure:"margin"`
	EngageRange float64       `mapstructure:"engage_range"`
}

// ScheduleConfig holds tick tier intervals and thresholds.
type ScheduleConfig struct {
	Critical         time.Duration `mapstructure:"critical"`
	Combat           time.Duration `mapstructure:"combat"`
	Hunting          time.Duration `mapstructure:"hunting"`
	Idle             time.Duration `mapstructure:"idle"`
	CriticalHealth   int           `mapstructure:"critical_health"`
	CriticalHostiles int           `mapstructure:"critical_hostiles"`
	WideRadius       float64       `mapstructure:"wide_radius"`
}

// EngineConfig holds every targeting engine setting.
type EngineConfig struct {
	// BehaviorsDir is the directory of per-creature YAML rule files.
	BehaviorsDir string          `mapstructure:"behaviors_dir"`
	CombatLinger time.Duration   `mapstructure:"combat_linger"`
	Index        IndexConfig     `mapstructure:"index"`
	Scoring      ScoringConfig   `mapstructure:"scoring"`
	Targeting    TargetingConfig `mapstructure:"targeting"`
	Schedule     ScheduleConfig  `mapstructure:"schedule"`
}

// IndexConfig returns the spatial index configuration.
func (e EngineConfig) IndexConfig() spatial.Config {
	return spatial.Config{
		CellSize:           e.Index.CellSize,
		TTL:                e.Index.TTL,
		ScanRadiusX:        e.Index.ScanRadiusX,
		ScanRadiusY:        e.Index.ScanRadiusY,
		IncludeOtherFloors: e.Index.IncludeOtherFloors,
	}
}

// Weights returns the priority weights.
func (e EngineConfig) Weights() priority.Weights {
	return priority.Weights{
		Health:      e.Scoring.Health,
		Distance:    e.Scoring.Distance,
		Danger:      e.Scoring.Danger,
		Priority:    e.Scoring.Priority,
		Attacking:   e.Scoring.Attacking,
		MaxDistance: e.Scoring.MaxDistance,
	}
}

// TargetConfig returns the target selector configuration.
func (e EngineConfig) TargetConfig() target.Config {
	return target.Config{
		Policy:      target.Policy(e.Targeting.Policy),
		SwitchDelay: e.Targeting.SwitchDelay,
		Margin:      e.Targeting.Margin,
		EngageRange: e.Targeting.EngageRange,
	}
}

// ScheduleConfig returns the scheduler configuration.
func (e EngineConfig) ScheduleConfig() schedule.Config {
	return schedule.Config{
		Critical:         e.Schedule.Critical,
		Combat:           e.Schedule.Combat,
		Hunting:          e.Schedule.Hunting,
		Idle:             e.Schedule.Idle,
		CriticalHealth:   e.Schedule.CriticalHealth,
		CriticalHostiles: e.Schedule.CriticalHostiles,
		WideRadius:       e.Schedule.WideRadius,
	}
}

// HuntConfig assembles the full engine configuration.
func (e EngineConfig) HuntConfig() hunt.Config {
	return hunt.Config{
		Index:        e.IndexConfig(),
		Weights:      e.Weights(),
		ScoreTTL:     e.Scoring.TTL,
		Target:       e.TargetConfig(),
		Schedule:     e.ScheduleConfig(),
		CombatLinger: e.CombatLinger,
	}
}

// ScriptingConfig holds Lua trigger evaluation settings.
type ScriptingConfig struct {
	// InstructionLimit is the opcode budget of one trigger evaluation; 0 uses the default.
	InstructionLimit int `mapstructure:"instruction_limit"`
	// ScriptsDir optionally holds *.lua helper files loaded before any evaluation.
	ScriptsDir string `mapstructure:"scripts_dir"`
}

// ControlConfig holds the gRPC health endpoint settings.
type ControlConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// SyncInterval is how often the health status is refreshed from the engine.
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (c ControlConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HostConfig holds the cooperative timer loop settings.
type HostConfig struct {
	// Resolution is the granularity at which periodic tasks are fired.
	Resolution time.Duration `mapstructure:"resolution"`
}

// SimConfig holds the simulated world settings.
type SimConfig struct {
	// Scenario is the YAML scenario file describing spawns and ability effects.
	Scenario string `mapstructure:"scenario"`
	// StepInterval is how often the simulated world advances.
	StepInterval time.Duration `mapstructure:"step_interval"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scripting ScriptingConfig `mapstructure:"scripting"`
	Control   ControlConfig   `mapstructure:"control"`
	Host      HostConfig      `mapstructure:"host"`
	Sim       SimConfig       `mapstructure:"sim"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Database.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateEngine(c.Engine); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Scripting.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("scripting.instruction_limit must be >= 0, got %d", c.Scripting.InstructionLimit))
	}
	if err := validateControl(c.Control); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Host.Resolution <= 0 {
		errs = append(errs, fmt.Sprintf("host.resolution must be > 0, got %s", c.Host.Resolution))
	}
	if c.Sim.StepInterval <= 0 {
		errs = append(errs, fmt.Sprintf("sim.step_interval must be > 0, got %s", c.Sim.StepInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateEngine(e EngineConfig) error {
	var errs []string
	if e.BehaviorsDir == "" {
		errs = append(errs, "engine.behaviors_dir must not be empty")
	}
	if err := e.HuntConfig().Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			errs = append(errs, "engine: "+line)
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateControl(c ControlConfig) error {
	var errs []string
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("control.port must be 0-65535, got %d", c.Port))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, fmt.Sprintf("control.sync_interval must be > 0, got %s", c.SyncInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with HUNTBOT_ prefix
	v.SetEnvPrefix("HUNTBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance carrying only the built-in defaults.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "huntbot")
	v.SetDefault("database.password", "huntbot")
	v.SetDefault("database.name", "huntbot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")

	def := hunt.DefaultConfig()
	v.SetDefault("engine.behaviors_dir", "content/behaviors")
	v.SetDefault("engine.combat_linger", def.CombatLinger.String())
	v.SetDefault("engine.index.cell_size", def.Index.CellSize)
	v.SetDefault("engine.index.ttl", def.Index.TTL.String())
	v.SetDefault("engine.index.scan_radius_x", def.Index.ScanRadiusX)
	v.SetDefault("engine.index.scan_radius_y", def.Index.ScanRadiusY)
	v.SetDefault("engine.index.include_other_floors", def.Index.IncludeOtherFloors)
	v.SetDefault("engine.scoring.health", def.Weights.Health)
	v.SetDefault("engine.scoring.distance", def.Weights.Distance)
	v.SetDefault("engine.scoring.danger", def.Weights.Danger)
	v.SetDefault("engine.scoring.priority", def.Weights.Priority)
	v.SetDefault("engine.scoring.attacking", def.Weights.Attacking)
	v.SetDefault("engine.scoring.max_distance", def.Weights.MaxDistance)
	v.SetDefault("engine.scoring.ttl", def.ScoreTTL.String())
	v.SetDefault("engine.targeting.policy", string(def.Target.Policy))
	v.SetDefault("engine.targeting.switch_delay", def.Target.SwitchDelay.String())
	v.SetDefault("engine.targeting.margin", def.Target.Margin)
	v.SetDefault("engine.targeting.engage_range", def.Target.EngageRange)
	v.SetDefault("engine.schedule.critical", def.Schedule.Critical.String())
	v.SetDefault("engine.schedule.combat", def.Schedule.Combat.String())
	v.SetDefault("engine.schedule.hunting", def.Schedule.Hunting.String())
	v.SetDefault("engine.schedule.idle", def.Schedule.Idle.String())
	v.SetDefault("engine.schedule.critical_health", def.Schedule.CriticalHealth)
	v.SetDefault("engine.schedule.critical_hostiles", def.Schedule.CriticalHostiles)
	v.SetDefault("engine.schedule.wide_radius", def.Schedule.WideRadius)

	v.SetDefault("scripting.instruction_limit", 0)
	v.SetDefault("scripting.scripts_dir", "")

	v.SetDefault("control.host", "127.0.0.1")
	v.SetDefault("control.port", 50061)
	v.SetDefault("control.sync_interval", "1s")

	v.SetDefault("host.resolution", "10ms")

	v.SetDefault("sim.scenario", "content/scenarios/meadow.yaml")
	v.SetDefault("sim.step_interval", "100ms")
}
