package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	LookupMongo  = "mongo"
	LookupRedis  = "redis"
	LookupMemory = "memory"
)

type Config struct {
	Name       string
	WSPort     int
	StatusPort int
	LogLevel   string
	LogDir     string

	GameProbeAddr        string
	BackendProbeAddr     string
	GameProbeInterval    time.Duration
	BackendProbeInterval time.Duration

	BanCheckTimeout time.Duration
	BanFailClosed   bool
	BanLookup       string

	MongoURI        string
	UsersDB         string
	UsersCollection string
	BansDB          string
	BansCollection  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookURL        string
	NotifyTopic       string
	AdminSubscription string
	GoogleProjectID   string
	CredentialsFile   string
	NotifyTimeout     time.Duration
}

func Load() *Config {
	cfg := &Config{
		Name:       strings.TrimSpace(getEnv("RELAY_NAME", "Relay")),
		WSPort:     getEnvInt("RELAY_WS_PORT", 81),
		StatusPort: getEnvInt("RELAY_STATUS_PORT", 665),
		LogLevel:   strings.TrimSpace(getEnv("RELAY_LOG_LEVEL", "info")),
		LogDir:     strings.TrimSpace(getEnv("RELAY_LOG_DIR", ".")),

		GameProbeAddr:        strings.TrimSpace(getEnv("RELAY_GAME_PROBE_ADDR", ":7777")),
		BackendProbeAddr:     strings.TrimSpace(getEnv("RELAY_BACKEND_PROBE_ADDR", ":3551")),
		GameProbeInterval:    getEnvDuration("RELAY_GAME_PROBE_INTERVAL", 5*time.Second),
		BackendProbeInterval: getEnvDuration("RELAY_BACKEND_PROBE_INTERVAL", 5*time.Second),

		BanCheckTimeout: getEnvDuration("RELAY_BAN_CHECK_TIMEOUT", 3*time.Second),
		BanFailClosed:   getEnvBool("RELAY_BAN_FAIL_CLOSED", false),
		BanLookup:       strings.ToLower(strings.TrimSpace(getEnv("RELAY_BAN_LOOKUP", LookupMongo))),

		MongoURI:        strings.TrimSpace(getEnv("RELAY_MONGO_URI", "mongodb://127.0.0.1:27017")),
		UsersDB:         strings.TrimSpace(getEnv("RELAY_USERS_DB", "nexus")),
		UsersCollection: strings.TrimSpace(getEnv("RELAY_USERS_COLLECTION", "users")),
		BansDB:          strings.TrimSpace(getEnv("RELAY_BANS_DB", "fortban")),
		BansCollection:  strings.TrimSpace(getEnv("RELAY_BANS_COLLECTION", "bannedUsers")),

		RedisAddr:     strings.TrimSpace(getEnv("RELAY_REDIS_ADDR", "127.0.0.1:6379")),
		RedisPassword: os.Getenv("RELAY_REDIS_PASSWORD"),
		RedisDB:       getEnvInt("RELAY_REDIS_DB", 0),

		WebhookURL:        strings.TrimSpace(os.Getenv("RELAY_WEBHOOK_URL")),
		NotifyTopic:       strings.TrimSpace(os.Getenv("RELAY_NOTIFY_TOPIC")),
		AdminSubscription: strings.TrimSpace(os.Getenv("RELAY_ADMIN_SUBSCRIPTION")),
		CredentialsFile:   strings.TrimSpace(firstNonEmpty(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), os.Getenv("RELAY_GSA_CREDENTIALS"))),
		NotifyTimeout:     getEnvDuration("RELAY_NOTIFY_TIMEOUT", 10*time.Second),
	}

	switch cfg.BanLookup {
	case LookupMongo, LookupRedis, LookupMemory:
	default:
		log.Warn().Str("banLookup", cfg.BanLookup).Msg("unknown RELAY_BAN_LOOKUP; falling back to mongo")
		cfg.BanLookup = LookupMongo
	}

	if cfg.UsesPubsub() {
		cfg.GoogleProjectID = getGoogleProjectID(cfg.CredentialsFile, strings.TrimSpace(getEnv("RELAY_PUBSUB_PROJECT_ID", "")))
		if cfg.GoogleProjectID == "" {
			log.Warn().Msg("Google project ID not resolved; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or RELAY_PUBSUB_PROJECT_ID")
		}
	}
	if cfg.WebhookURL == "" && cfg.NotifyTopic == "" {
		log.Warn().Msg("no notification sink configured; set RELAY_WEBHOOK_URL or RELAY_NOTIFY_TOPIC")
	}
	return cfg
}

// UsesPubsub reports whether any Pub/Sub integration is enabled.
func (c *Config) UsesPubsub() bool {
	return c.NotifyTopic != "" || c.AdminSubscription != ""
}

func (c *Config) WSAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.WSPort))
}

func (c *Config) StatusAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.StatusPort))
}

// Redacted returns a view safe for logging
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"name":                 c.Name,
		"wsPort":               c.WSPort,
		"statusPort":           c.StatusPort,
		"logLevel":             c.LogLevel,
		"logDir":               c.LogDir,
		"gameProbeAddr":        c.GameProbeAddr,
		"backendProbeAddr":     c.BackendProbeAddr,
		"gameProbeInterval":    c.GameProbeInterval.String(),
		"backendProbeInterval": c.BackendProbeInterval.String(),
		"banCheckTimeout":      c.BanCheckTimeout.String(),
		"banFailClosed":        c.BanFailClosed,
		"banLookup":            c.BanLookup,
		"mongoConfigured":      c.MongoURI != "",
		"usersCollection":      c.UsersDB + "." + c.UsersCollection,
		"bansCollection":       c.BansDB + "." + c.BansCollection,
		"redisAddr":            c.RedisAddr,
		"webhookConfigured":    c.WebhookURL != "",
		"notifyTopic":          c.NotifyTopic,
		"adminSubscription":    c.AdminSubscription,
		"projectID":            c.GoogleProjectID,
		"credentialsProvided":  c.CredentialsFile != "",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		iv, err := strconv.Atoi(v)
		if err == nil {
			return iv
		}
		fmt.Printf("invalid int for %s: %s\n", key, v)
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b
		}
		fmt.Printf("invalid bool for %s: %s\n", key, v)
	}
	return def
}

// getEnvDuration accepts Go durations ("5s", "250ms") or a bare number of
// milliseconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	fmt.Printf("invalid duration for %s: %s\n", key, v)
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func projectIDFromCredentials(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	var x struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(b, &x); err != nil {
		return "", err
	}
	return x.ProjectID, nil
}

func getGoogleProjectID(credsFile string, explicit string) string {
	// 1) Prefer GOOGLE_APPLICATION_CREDENTIALS if set
	if p := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); p != "" {
		log.Info().Str("credsFile", p).Msg("GOOGLE_APPLICATION_CREDENTIALS is set; extracting project_id from credentials file")
		if pid, err := projectIDFromCredentials(p); err == nil && pid != "" {
			return strings.TrimSpace(pid)
		}
		log.Warn().Str("credsFile", p).Msg("project_id not found in credentials file or unreadable")
	}

	// 2) Explicit override from relay env
	if explicit := strings.TrimSpace(explicit); explicit != "" {
		log.Info().Str("projectID", explicit).Msg("using RELAY_PUBSUB_PROJECT_ID for Google project")
		return explicit
	}

	// 3) External override
	if v := strings.TrimSpace(os.Getenv("GOOGLE_PROJECT_ID")); v != "" {
		log.Info().Str("projectID", v).Msg("using GOOGLE_PROJECT_ID from environment")
		return v
	}

	// 4) Common Google envs
	if v := firstNonEmpty(os.Getenv("GOOGLE_CLOUD_PROJECT"), os.Getenv("GCLOUD_PROJECT"), os.Getenv("GCP_PROJECT")); strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		log.Info().Str("projectID", v).Msg("using Google project from common environment variables")
		return v
	}

	// 5) Fallback to provided credentials file path (RELAY_GSA_CREDENTIALS)
	if p := strings.TrimSpace(credsFile); p != "" {
		if pid, err := projectIDFromCredentials(p); err == nil && pid != "" {
			log.Info().Str("credsFile", p).Msg("using project_id from provided credentials file")
			return strings.TrimSpace(pid)
		}
	}
	return ""
}
