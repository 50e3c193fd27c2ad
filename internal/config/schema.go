package config

// Config is the top-level YAML structure.
type Config struct {
	Version   string        `yaml:"version"`
	Server    ServerConf    `yaml:"server"`
	Storage   StorageConf   `yaml:"storage"`
	Engine    EngineConf    `yaml:"engine"`
	Scheduler SchedulerConf `yaml:"scheduler"`
	Audit     AuditConf     `yaml:"audit"`
	Logging   LoggingConf   `yaml:"logging"`
}

// ServerConf holds HTTP listener settings.
type ServerConf struct {
	Addr string `yaml:"addr"`
}

// StorageConf selects a backing store. Driver is one of "memory", "sqlite"
// or "postgres"; DSN is the file path for sqlite and the connection string
// for postgres.
type StorageConf struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// EngineConf holds tunable concurrency settings for the dispatch pool.
type EngineConf struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
}

// SchedulerConf tunes the time-based trigger loop.
type SchedulerConf struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// AuditConf tunes retention of execution history. RetentionCap is
// hot-reloadable; the sweep interval is fixed at startup.
type AuditConf struct {
	RetentionCap       int `yaml:"retention_cap"`
	SweepIntervalHours int `yaml:"sweep_interval_hours"`
}

// LoggingConf selects the slog level: debug, info, warn or error.
// Hot-reloadable.
type LoggingConf struct {
	Level string `yaml:"level"`
}
