package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// NodeRole decides which way sync pushes flow from this process.
type NodeRole string

const (
	RoleAuthoritative NodeRole = "authoritative" // owns identity, subscription and quota
	RoleData          NodeRole = "data"          // stores vocabulary for assigned users
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // debug | info | warn | error

	Role             NodeRole // authoritative or data
	NodeID           string   // sent as X-Server-Id on outgoing sync calls
	PublicURL        string   // this node's own base URL
	AuthoritativeURL string   // where data nodes push usage stats
	SyncSecret       string   // shared fleet secret for request signing
	SyncTimeout      time.Duration
	SyncMaxAttempts  int // deferred redelivery attempts per message
	SyncRetryDelay   time.Duration
	RabbitURL        string

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	MongoURI string
	MongoDB  string

	JWTSecret         string // secret used to sign JWTs
	AccessTTLMin      int    // user access token time-to-live in minutes
	AdminTTLMin       int    // admin token time-to-live in minutes
	AdminUsername     string
	AdminPasswordHash string // bcrypt hash; admin login is disabled when empty
	BcryptCost        int    // bcrypt cost for password hashing

	HealthCheckTimeout time.Duration
	HealthPath         string
	BatchChunkSize     int
	SelfHosted         bool   // new users are created as self-hosted installs
	PlansFile          string // optional YAML plan table
	SubscriptionURL    string // external plan verification endpoint
	CORSOrigins        []string
}

// IsAuthoritative reports whether this node owns identity state.
func (c Config) IsAuthoritative() bool { return c.Role == RoleAuthoritative }

// Load reads configuration values from environment variables.  Every
// missing required variable is reported in a single error.
func Load() (Config, error) {
	var missing []string
	must := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	host, _ := os.Hostname()
	cfg := Config{
		Env:      envStr("APP_ENV", "dev"),
		Port:     envStr("APP_PORT", "8080"),
		LogLevel: envStr("LOG_LEVEL", "info"),

		Role:             NodeRole(strings.ToLower(envStr("NODE_ROLE", string(RoleAuthoritative)))),
		NodeID:           envStr("NODE_ID", host),
		PublicURL:        strings.TrimRight(os.Getenv("NODE_PUBLIC_URL"), "/"),
		AuthoritativeURL: strings.TrimRight(os.Getenv("AUTHORITATIVE_URL"), "/"),
		SyncSecret:       must("SERVER_SYNC_SECRET"),
		SyncTimeout:      envDur("SYNC_TIMEOUT", 10*time.Second),
		SyncMaxAttempts:  envInt("SYNC_MAX_ATTEMPTS", 5),
		SyncRetryDelay:   envDur("SYNC_RETRY_DELAY", 30*time.Second),
		RabbitURL:        firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		MongoURI: envStr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  envStr("MONGO_DB", "vocabulary"),

		JWTSecret:         must("JWT_SECRET"),
		AccessTTLMin:      envInt("ACCESS_TOKEN_TTL_MIN", 60),
		AdminTTLMin:       envInt("ADMIN_TOKEN_TTL_MIN", 30),
		AdminUsername:     envStr("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		BcryptCost:        envInt("BCRYPT_COST", 10),

		HealthCheckTimeout: envDur("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		HealthPath:         envStr("HEALTH_PATH", "/healthz"),
		BatchChunkSize:     envInt("BATCH_CHUNK_SIZE", 500),
		SelfHosted:         envBool("SELF_HOSTED", false),
		PlansFile:          os.Getenv("PLANS_FILE"),
		SubscriptionURL:    os.Getenv("SUBSCRIPTION_VERIFY_URL"),
		CORSOrigins:        envList("CORS_ALLOWED_ORIGINS", "*"),
	}

	switch cfg.Role {
	case RoleAuthoritative:
	case RoleData:
		if cfg.AuthoritativeURL == "" {
			missing = append(missing, "AUTHORITATIVE_URL")
		}
	default:
		return Config{}, fmt.Errorf("invalid NODE_ROLE %q", cfg.Role)
	}
	if len(missing) > 0 {
		return Config{}, errors.New("missing required env vars: " + strings.Join(missing, ", "))
	}
	if cfg.BatchChunkSize < 1 {
		cfg.BatchChunkSize = 500
	}
	if cfg.SyncMaxAttempts < 1 {
		cfg.SyncMaxAttempts = 1
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
