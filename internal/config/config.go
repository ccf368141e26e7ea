// Package config loads and hot-reloads the induction core's
// configuration: engine weights, optimizer parameters, the status
// loop's schedule, and the event bus's backpressure policy table.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineWeights are the composite-score weights the Decision Engine
// applies to the six rule evaluators (§4.3). They are configurable but
// fixed for the duration of a single decision run.
type EngineWeights struct {
	Certificate float64 `yaml:"certificate"`
	WorkOrder   float64 `yaml:"workOrder"`
	Branding    float64 `yaml:"branding"`
	Mileage     float64 `yaml:"mileage"`
	Cleaning    float64 `yaml:"cleaning"`
	Stabling    float64 `yaml:"stabling"`
}

// DefaultEngineWeights returns the §4.3 defaults.
func DefaultEngineWeights() EngineWeights {
	return EngineWeights{
		Certificate: 0.25,
		WorkOrder:   0.20,
		Branding:    0.15,
		Mileage:     0.15,
		Cleaning:    0.15,
		Stabling:    0.10,
	}
}

// Sum returns the total of all six weights, used to validate that the
// configured weights still form a proper convex combination.
func (w EngineWeights) Sum() float64 {
	return w.Certificate + w.WorkOrder + w.Branding + w.Mileage + w.Cleaning + w.Stabling
}

// EngineConfig groups the Decision Engine's tunables.
type EngineConfig struct {
	Weights      EngineWeights `yaml:"weights"`
	MinReady     int           `yaml:"minReady"`     // §4.3 MIN_READY, default 15
	ReadyScore   float64       `yaml:"readyScore"`   // default 80
	AttentionMin float64       `yaml:"attentionMin"` // default 60
}

// ObjectiveWeights are the five NSGA-II objective weights the weighted
// tournament-selection fitness and the recommended_solution pick use
// (§4.4 "the default objective weights above").
type ObjectiveWeights struct {
	ServiceReadiness float64 `yaml:"serviceReadiness"`
	Reliability      float64 `yaml:"reliability"`
	CostEfficiency   float64 `yaml:"costEfficiency"`
	BrandingExposure float64 `yaml:"brandingExposure"`
	EnergyEfficiency float64 `yaml:"energyEfficiency"`
}

// DefaultObjectiveWeights returns an equal weighting across the five
// objectives; §4.4 names the objectives but not their relative weights.
func DefaultObjectiveWeights() ObjectiveWeights {
	return ObjectiveWeights{
		ServiceReadiness: 0.2,
		Reliability:      0.2,
		CostEfficiency:   0.2,
		BrandingExposure: 0.2,
		EnergyEfficiency: 0.2,
	}
}

// Sum returns the total of all five objective weights.
func (w ObjectiveWeights) Sum() float64 {
	return w.ServiceReadiness + w.Reliability + w.CostEfficiency + w.BrandingExposure + w.EnergyEfficiency
}

// OptimizerConfig groups the NSGA-II-style optimizer's tunables (§4.4, §5).
type OptimizerConfig struct {
	PopulationSize   int              `yaml:"populationSize"`
	Generations      int              `yaml:"generations"`
	CrossoverRate    float64          `yaml:"crossoverRate"`
	MutationRate     float64          `yaml:"mutationRate"`
	ElitismFraction  float64          `yaml:"elitismFraction"`
	TournamentSize   int              `yaml:"tournamentSize"`
	MinTrainsets     int              `yaml:"minTrainsets"`
	MaxTrainsets     int              `yaml:"maxTrainsets"`
	MaxWorkers       int              `yaml:"maxWorkers"`
	GenerationBudget time.Duration    `yaml:"generationBudget"`
	RunHardTimeout   time.Duration    `yaml:"runHardTimeout"`
	Weights          ObjectiveWeights `yaml:"weights"`
	Seed             int64            `yaml:"seed"`
}

// StatusLoopConfig groups the autonomous status loop's schedule (§4.6).
type StatusLoopConfig struct {
	SweepInterval      time.Duration   `yaml:"sweepInterval"` // hourly by default
	CleaningStartTimes []time.Duration `yaml:"cleaningStartTimes"`
	CleaningEndTimes   []time.Duration `yaml:"cleaningEndTimes"`
	CleaningWindow     time.Duration   `yaml:"cleaningWindow"` // not-cleaned-within threshold, 20h default
	CleaningFraction   float64         `yaml:"cleaningFraction"` // fraction of eligible trainsets selected per cycle, ~30% default
}

// BusPolicy is the closed set of backpressure strategies a subscription
// can request (§4.8).
type BusPolicy string

const (
	BusPolicyDropOldest       BusPolicy = "drop_oldest"
	BusPolicyBlockProducer    BusPolicy = "block_producer"
	BusPolicyDropSubscription BusPolicy = "drop_subscription"
)

// BusConfig groups the event bus's queueing tunables.
type BusConfig struct {
	QueueDepth      int           `yaml:"queueDepth"`
	DefaultPolicy   BusPolicy     `yaml:"defaultPolicy"`
	HeartbeatPeriod time.Duration `yaml:"heartbeatPeriod"`
}

// StoreConfig groups the Fleet Store Adapter's backend settings.
type StoreConfig struct {
	SQLitePath    string        `yaml:"sqlitePath"`
	AuditLogPath  string        `yaml:"auditLogPath"`
	RetryAttempts int           `yaml:"retryAttempts"`
	RetryBackoff  time.Duration `yaml:"retryBackoff"`
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	RedisAddr     string        `yaml:"redisAddr"` // empty = use in-memory cache
}

// APIConfig groups the Command Surface's HTTP binding settings.
type APIConfig struct {
	ListenAddr      string `yaml:"listenAddr"`
	RateLimitPerMin int    `yaml:"rateLimitPerMin"`
}

// FileConfig is the YAML on-disk shape. Unknown fields are rejected at
// load time to catch misconfiguration early.
type FileConfig struct {
	LogLevel  string           `yaml:"logLevel,omitempty"`
	Engine    EngineConfig     `yaml:"engine,omitempty"`
	Optimizer OptimizerConfig  `yaml:"optimizer,omitempty"`
	Status    StatusLoopConfig `yaml:"statusLoop,omitempty"`
	Bus       BusConfig        `yaml:"bus,omitempty"`
	Store     StoreConfig      `yaml:"store,omitempty"`
	API       APIConfig        `yaml:"api,omitempty"`
}

// AppConfig is the fully-resolved configuration the rest of the
// process consumes, defaults applied and validated.
type AppConfig struct {
	LogLevel  string
	Engine    EngineConfig
	Optimizer OptimizerConfig
	Status    StatusLoopConfig
	Bus       BusConfig
	Store     StoreConfig
	API       APIConfig
}

// Defaults returns a fully-populated AppConfig with the specification's
// stated defaults, before any file or environment overrides are applied.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		Engine: EngineConfig{
			Weights:      DefaultEngineWeights(),
			MinReady:     15,
			ReadyScore:   80,
			AttentionMin: 60,
		},
		Optimizer: OptimizerConfig{
			PopulationSize:   50,
			Generations:      100,
			CrossoverRate:    0.9,
			MutationRate:     0.1,
			ElitismFraction:  0.1,
			TournamentSize:   3,
			MinTrainsets:     15,
			MaxTrainsets:     25,
			MaxWorkers:       runtime.NumCPU(),
			GenerationBudget: 60 * time.Second,
			RunHardTimeout:   5 * time.Minute,
			Weights:          DefaultObjectiveWeights(),
			Seed:             1,
		},
		Status: StatusLoopConfig{
			SweepInterval:      time.Hour,
			CleaningStartTimes: []time.Duration{22 * time.Hour},
			CleaningEndTimes:   []time.Duration{0},
			CleaningWindow:     20 * time.Hour,
			CleaningFraction:   0.3,
		},
		Bus: BusConfig{
			QueueDepth:      256,
			DefaultPolicy:   BusPolicyDropOldest,
			HeartbeatPeriod: 30 * time.Second,
		},
		Store: StoreConfig{
			SQLitePath:    "induction.db",
			AuditLogPath:  "induction-audit",
			RetryAttempts: 3,
			RetryBackoff:  100 * time.Millisecond,
			CacheTTL:      30 * time.Second,
		},
		API: APIConfig{
			ListenAddr:      ":8080",
			RateLimitPerMin: 600,
		},
	}
}

// Loader loads configuration with precedence ENV > File > Defaults,
// following the teacher's Loader shape.
type Loader struct {
	configPath string
}

// NewLoader creates a Loader. configPath may be empty, meaning
// defaults plus environment only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load resolves the final AppConfig.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	mergeEnvConfig(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &fc, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Engine.Weights.Sum() > 0 {
		dst.Engine.Weights = src.Engine.Weights
	}
	if src.Engine.MinReady > 0 {
		dst.Engine.MinReady = src.Engine.MinReady
	}
	if src.Engine.ReadyScore > 0 {
		dst.Engine.ReadyScore = src.Engine.ReadyScore
	}
	if src.Engine.AttentionMin > 0 {
		dst.Engine.AttentionMin = src.Engine.AttentionMin
	}
	if src.Optimizer.PopulationSize > 0 {
		dst.Optimizer.PopulationSize = src.Optimizer.PopulationSize
	}
	if src.Optimizer.Generations > 0 {
		dst.Optimizer.Generations = src.Optimizer.Generations
	}
	if src.Optimizer.CrossoverRate > 0 {
		dst.Optimizer.CrossoverRate = src.Optimizer.CrossoverRate
	}
	if src.Optimizer.MutationRate > 0 {
		dst.Optimizer.MutationRate = src.Optimizer.MutationRate
	}
	if src.Optimizer.ElitismFraction > 0 {
		dst.Optimizer.ElitismFraction = src.Optimizer.ElitismFraction
	}
	if src.Optimizer.TournamentSize > 0 {
		dst.Optimizer.TournamentSize = src.Optimizer.TournamentSize
	}
	if src.Optimizer.MinTrainsets > 0 {
		dst.Optimizer.MinTrainsets = src.Optimizer.MinTrainsets
	}
	if src.Optimizer.MaxTrainsets > 0 {
		dst.Optimizer.MaxTrainsets = src.Optimizer.MaxTrainsets
	}
	if src.Optimizer.MaxWorkers > 0 {
		dst.Optimizer.MaxWorkers = src.Optimizer.MaxWorkers
	}
	if src.Optimizer.GenerationBudget > 0 {
		dst.Optimizer.GenerationBudget = src.Optimizer.GenerationBudget
	}
	if src.Optimizer.RunHardTimeout > 0 {
		dst.Optimizer.RunHardTimeout = src.Optimizer.RunHardTimeout
	}
	if src.Optimizer.Weights.Sum() > 0 {
		dst.Optimizer.Weights = src.Optimizer.Weights
	}
	if src.Optimizer.Seed != 0 {
		dst.Optimizer.Seed = src.Optimizer.Seed
	}
	if src.Status.SweepInterval > 0 {
		dst.Status.SweepInterval = src.Status.SweepInterval
	}
	if len(src.Status.CleaningStartTimes) > 0 {
		dst.Status.CleaningStartTimes = src.Status.CleaningStartTimes
	}
	if len(src.Status.CleaningEndTimes) > 0 {
		dst.Status.CleaningEndTimes = src.Status.CleaningEndTimes
	}
	if src.Status.CleaningWindow > 0 {
		dst.Status.CleaningWindow = src.Status.CleaningWindow
	}
	if src.Status.CleaningFraction > 0 {
		dst.Status.CleaningFraction = src.Status.CleaningFraction
	}
	if src.Bus.QueueDepth > 0 {
		dst.Bus.QueueDepth = src.Bus.QueueDepth
	}
	if src.Bus.DefaultPolicy != "" {
		dst.Bus.DefaultPolicy = src.Bus.DefaultPolicy
	}
	if src.Bus.HeartbeatPeriod > 0 {
		dst.Bus.HeartbeatPeriod = src.Bus.HeartbeatPeriod
	}
	if src.Store.SQLitePath != "" {
		dst.Store.SQLitePath = src.Store.SQLitePath
	}
	if src.Store.AuditLogPath != "" {
		dst.Store.AuditLogPath = src.Store.AuditLogPath
	}
	if src.Store.RetryAttempts > 0 {
		dst.Store.RetryAttempts = src.Store.RetryAttempts
	}
	if src.Store.RetryBackoff > 0 {
		dst.Store.RetryBackoff = src.Store.RetryBackoff
	}
	if src.Store.CacheTTL > 0 {
		dst.Store.CacheTTL = src.Store.CacheTTL
	}
	if src.Store.RedisAddr != "" {
		dst.Store.RedisAddr = src.Store.RedisAddr
	}
	if src.API.ListenAddr != "" {
		dst.API.ListenAddr = src.API.ListenAddr
	}
	if src.API.RateLimitPerMin > 0 {
		dst.API.RateLimitPerMin = src.API.RateLimitPerMin
	}
}

func mergeEnvConfig(cfg *AppConfig) {
	if v, ok := os.LookupEnv("INDUCTION_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("INDUCTION_API_LISTEN_ADDR"); ok {
		cfg.API.ListenAddr = v
	}
	if v, ok := os.LookupEnv("INDUCTION_STORE_REDIS_ADDR"); ok {
		cfg.Store.RedisAddr = v
	}
	if v, ok := os.LookupEnv("INDUCTION_STORE_SQLITE_PATH"); ok {
		cfg.Store.SQLitePath = v
	}
}

// Validate enforces the configuration constraints the rest of the
// system assumes hold.
func Validate(cfg AppConfig) error {
	if sum := cfg.Engine.Weights.Sum(); sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("engine weights must sum to ~1.0, got %.4f", sum)
	}
	if cfg.Engine.MinReady <= 0 {
		return fmt.Errorf("engine.minReady must be positive")
	}
	if cfg.Optimizer.PopulationSize <= 0 {
		return fmt.Errorf("optimizer.populationSize must be positive")
	}
	if cfg.Optimizer.MaxWorkers <= 0 {
		return fmt.Errorf("optimizer.maxWorkers must be positive")
	}
	if cfg.Optimizer.MinTrainsets > 0 && cfg.Optimizer.MaxTrainsets > 0 && cfg.Optimizer.MinTrainsets > cfg.Optimizer.MaxTrainsets {
		return fmt.Errorf("optimizer.minTrainsets (%d) exceeds optimizer.maxTrainsets (%d)", cfg.Optimizer.MinTrainsets, cfg.Optimizer.MaxTrainsets)
	}
	switch cfg.Bus.DefaultPolicy {
	case BusPolicyDropOldest, BusPolicyBlockProducer, BusPolicyDropSubscription:
	default:
		return fmt.Errorf("bus.defaultPolicy %q is not a recognized policy", cfg.Bus.DefaultPolicy)
	}
	return nil
}
