package config

import "time"

// ServerConfig holds the mock POS server's runtime settings.  The MySQL
// waiter directory and the RabbitMQ fan-out are optional: empty DBHost or
// RabbitURL turn them off.
type ServerConfig struct {
	Env           string        // application environment (dev, test, prod)
	Port          string        // HTTP port to listen on
	JWTSecret     string        // secret used to sign waiter access tokens
	AccessTTL     time.Duration // access token lifetime
	BcryptCost    int           // cost for PIN and owner password hashes
	OwnerPassword string        // plaintext owner password, hashed at startup
	MobileEnabled bool          // initial value of the mobile feature flag
	WaiterPIN     string        // PIN shared by the seeded waiters
	Redis         RedisConfig
	DBUser        string
	DBPass        string
	DBHost        string
	DBPort        string
	DBName        string
	RabbitURL     string
}

// LoadServer reads the server configuration.  In prod JWT_SECRET and
// OWNER_PASSWORD are required; elsewhere they fall back to development
// values matching the mock data.
func LoadServer() ServerConfig {
	cfg := ServerConfig{
		Env:           envStr("APP_ENV", "dev"),
		Port:          envStr("APP_PORT", "4000"),
		AccessTTL:     time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 720)) * time.Minute,
		BcryptCost:    envInt("BCRYPT_COST", 10),
		MobileEnabled: envBool("MOBILE_ENABLED", true),
		WaiterPIN:     envStr("WAITER_PIN", "1234"),
		Redis:         LoadRedisConfig(),
		DBUser:        envStr("DB_USER", ""),
		DBPass:        envStr("DB_PASS", ""),
		DBHost:        envStr("DB_HOST", ""),
		DBPort:        envStr("DB_PORT", "3306"),
		DBName:        envStr("DB_NAME", ""),
		RabbitURL:     envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
	}
	if cfg.Env == "prod" {
		cfg.JWTSecret = must("JWT_SECRET")
		cfg.OwnerPassword = must("OWNER_PASSWORD")
	} else {
		cfg.JWTSecret = envStr("JWT_SECRET", "posmock-dev-secret")
		cfg.OwnerPassword = envStr("OWNER_PASSWORD", "owner")
	}
	return cfg
}

// DBEnabled reports whether a MySQL waiter directory is configured.
func (c ServerConfig) DBEnabled() bool { return c.DBHost != "" && c.DBName != "" }
