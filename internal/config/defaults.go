package config

// Default configuration values.
const (
	DefaultDriver    = "sqlite"
	DefaultDSN       = "leaprecord.db"
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
	DefaultOutput    = "table"
)

// defaultValues seeds the koanf instance before any other source is loaded.
func defaultValues() map[string]any {
	return map[string]any{
		"database.driver":       DefaultDriver,
		"database.dsn":          DefaultDSN,
		"database.foreign_keys": true,
		"log.level":             DefaultLogLevel,
		"log.format":            DefaultLogFormat,
		"output":                DefaultOutput,
		"verbose":               false,
	}
}

// ApplyDefaults fills empty fields of a Config built without Load.
// Boolean settings keep their zero value.
func (c *Config) ApplyDefaults() {
	if c == nil {
		return
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Database.DSN == "" {
		c.Database.DSN = DefaultDSN
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
}
