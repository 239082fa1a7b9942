package pkg

import (
	"time"
)

// ApplyDefaults applies default values to ServerConfig for any zero-valued fields
// Default: ReadTimeout=30s, WriteTimeout=30s, IdleTimeout=120s, MaxHeaderBytes=1MB,
// MaxConnections=10000, MaxRequestSize=10MB, ShutdownTimeout=30s,
// ReadBufferSize=4096, WriteBufferSize=4096
func (c *ServerConfig) ApplyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = 1048576 // 1 MB
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 10000
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 10485760 // 10 MB
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 4096
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = 4096
	}
}

// ApplyDefaults applies default values to DatabaseConfig for any zero-valued fields
// Default: Host="localhost", MaxOpenConns=25, MaxIdleConns=5, ConnMaxLifetime=5m
// Port defaults are driver-specific: postgres=5432, mysql=3306, mssql=1433, sqlite=0
func (c *DatabaseConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		// Apply driver-specific port defaults
		switch c.Driver {
		case "postgres":
			c.Port = 5432
		case "mysql":
			c.Port = 3306
		case "mssql":
			c.Port = 1433
		case "sqlite":
			c.Port = 0 // SQLite doesn't use ports
		}
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// ApplyDefaults applies default values to CacheConfig for any zero-valued fields
// Default: DefaultTTL=0 (no expiration). Negative values are normalized to 0.
func (c *CacheConfig) ApplyDefaults() {
	if c.DefaultTTL < 0 {
		c.DefaultTTL = 0
	}
}
