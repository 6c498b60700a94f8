package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Remote engines accepted by REMOTE_ENGINE
const (
	RemoteNone     = "none"
	RemoteSQL      = "sql"
	RemoteMongo    = "mongo"
	RemoteDynamoDB = "dynamodb"
)

// Identity modes accepted by AUTH_MODE
const (
	AuthNone   = "none"
	AuthJWT    = "jwt"
	AuthGoogle = "google"
)

// Config holds application configuration
type Config struct {
	ServerPort   string
	DatabasePath string

	// Remote storage
	RemoteEngine       string
	DatabaseType       string
	DatabaseURL        string
	MongoURI           string
	MongoDatabase      string
	AWSRegion          string
	DynamoTablePrefix  string
	RemoteTimeout      time.Duration
	RemoteHistoryLimit int
	LocalHistoryCap    int

	// Round parameters
	RoundSize     int
	QuestionTime  time.Duration
	FeedbackDelay time.Duration
	TickInterval  time.Duration
	QuestionsPath string
	ReverseMode   bool

	// Identity
	AuthMode          string
	JWTSecret         string
	JWTIssuer         string
	GoogleUserInfoURL string
	SessionSecret     string

	// Requests per client per RateWindow
	RateLimit  int
	RateWindow time.Duration
	// Reverse proxies allowed to set X-Forwarded-For, as IPs or CIDR ranges
	TrustedProxies []string
}

// Load reads configuration from an optional .env file and environment variables
// with sensible defaults
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		ServerPort:   getEnv("PORT", "8080"),
		DatabasePath: getEnv("DB_PATH", "./hayaoshi.db"),

		RemoteEngine:       strings.ToLower(getEnv("REMOTE_ENGINE", RemoteNone)),
		DatabaseType:       getEnv("DATABASE_TYPE", "postgres"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DB", "hayaoshi"),
		AWSRegion:          getEnv("AWS_REGION", "ap-northeast-1"),
		DynamoTablePrefix:  getEnv("DYNAMODB_TABLE_PREFIX", "hayaoshi_"),
		RemoteTimeout:      getEnvDuration("REMOTE_TIMEOUT", 5*time.Second),
		RemoteHistoryLimit: getEnvInt("REMOTE_HISTORY_LIMIT", 20),
		LocalHistoryCap:    getEnvInt("LOCAL_HISTORY_CAP", 50),

		RoundSize:     getEnvInt("ROUND_SIZE", 10),
		QuestionTime:  getEnvDuration("QUESTION_TIME", 10*time.Second),
		FeedbackDelay: getEnvDuration("FEEDBACK_DELAY", time.Second),
		TickInterval:  getEnvDuration("TICK_INTERVAL", 100*time.Millisecond),
		QuestionsPath: getEnv("QUESTIONS_PATH", ""),
		ReverseMode:   getEnvBool("REVERSE_MODE", false),

		AuthMode:          strings.ToLower(getEnv("AUTH_MODE", AuthNone)),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", "hayaoshi"),
		GoogleUserInfoURL: getEnv("GOOGLE_USERINFO_URL", "https://www.googleapis.com/oauth2/v2/userinfo"),
		SessionSecret:     getEnv("SESSION_SECRET", ""),

		RateLimit:  getEnvInt("RATE_LIMIT", 120),
		RateWindow: getEnvDuration("RATE_WINDOW", time.Minute),

		TrustedProxies: getEnvList("TRUSTED_PROXIES"),
	}
}

// Validate checks settings that would otherwise fail later at runtime
func (c *Config) Validate() error {
	switch c.RemoteEngine {
	case RemoteNone, "":
	case RemoteSQL:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when REMOTE_ENGINE=%s", RemoteSQL)
		}
	case RemoteMongo, RemoteDynamoDB:
	default:
		return fmt.Errorf("unsupported REMOTE_ENGINE: %s", c.RemoteEngine)
	}

	switch c.AuthMode {
	case AuthNone, "", AuthGoogle:
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=%s", AuthJWT)
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE: %s", c.AuthMode)
	}

	if c.RoundSize <= 0 {
		return fmt.Errorf("ROUND_SIZE must be positive, got %d", c.RoundSize)
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT and RATE_WINDOW must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList reads a comma separated environment variable, dropping empty items
func getEnvList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvInt reads an integer environment variable, keeping the default on parse errors
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("5s") or plain milliseconds ("5000")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Printf("Warning: invalid %s=%q, using %s", key, value, defaultValue)
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}
