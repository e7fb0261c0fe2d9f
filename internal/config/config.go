package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"onereply/api/internal/consolidate"
	"onereply/api/internal/util"
)

type Config struct {
	Addr          string `validate:"required"`
	Environment   string `validate:"oneof=development production test"`
	LogLevel      string `validate:"oneof=debug info warn error"`
	DatabaseURL   string
	MigrationsDir string `validate:"required"`
	ReposDir      string `validate:"required"`
	CORSOrigin    string `validate:"required"`
	// Origin is the public URL review links in notifications point at.
	Origin string `validate:"omitempty,url"`

	RedisURL string        `validate:"omitempty,url"`
	LockTTL  time.Duration `validate:"min=1s"`

	MeiliURL       string `validate:"omitempty,url"`
	MeiliMasterKey string

	DepartmentsFile string
	PolicyFile      string
	Policy          consolidate.Policy `validate:"-"`

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string `validate:"omitempty,email"`
	SMTPFromName string
	NotifyTo     []string `validate:"dive,email"`
	// TeamsWebhooks maps department key to webhook URL.
	TeamsWebhooks map[string]string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	AllowedSenderDomains []string
}

func Load() (Config, error) {
	cfg := Config{
		Addr:                 getenv("API_ADDR", ":8787"),
		Environment:          getenv("ENVIRONMENT", "development"),
		LogLevel:             strings.ToLower(getenv("LOG_LEVEL", "info")),
		DatabaseURL:          getenv("DATABASE_URL", ""),
		MigrationsDir:        getenv("ONEREPLY_MIGRATIONS_DIR", "./db/migrations"),
		ReposDir:             getenv("ONEREPLY_REPOS_DIR", "./data/repos"),
		CORSOrigin:           getenv("ONEREPLY_CORS_ORIGIN", "*"),
		Origin:               getenv("ONEREPLY_ORIGIN", "http://localhost:5173"),
		RedisURL:             getenv("REDIS_URL", ""),
		LockTTL:              time.Duration(getenvInt("ONEREPLY_LOCK_TTL_SECONDS", 10)) * time.Second,
		MeiliURL:             getenv("MEILI_URL", ""),
		MeiliMasterKey:       getenv("MEILI_MASTER_KEY", ""),
		DepartmentsFile:      getenv("ONEREPLY_DEPARTMENTS_FILE", ""),
		PolicyFile:           getenv("ONEREPLY_POLICY_FILE", ""),
		SMTPHost:             getenv("SMTP_HOST", ""),
		SMTPPort:             getenv("SMTP_PORT", "587"),
		SMTPUsername:         getenv("SMTP_USERNAME", ""),
		SMTPPassword:         getenv("SMTP_PASSWORD", ""),
		SMTPFrom:             getenv("SMTP_FROM", ""),
		SMTPFromName:         getenv("SMTP_FROM_NAME", "OneReply"),
		NotifyTo:             getenvList("ONEREPLY_NOTIFY_TO"),
		TeamsWebhooks:        getenvMap("ONEREPLY_TEAMS_WEBHOOKS"),
		MinioEndpoint:        getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey:       getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:       getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:          getenv("MINIO_BUCKET", "onereply-exports"),
		MinioUseSSL:          getenvBool("MINIO_USE_SSL", false),
		AllowedSenderDomains: getenvList("ONEREPLY_ALLOWED_SENDER_DOMAINS"),
	}

	policy, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Policy = policy

	if err := util.ValidateStruct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadPolicy reads consolidation overrides from YAML on top of the
// defaults. An empty path returns the defaults.
func LoadPolicy(path string) (consolidate.Policy, error) {
	policy := consolidate.DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return consolidate.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return consolidate.Policy{}, fmt.Errorf("parse policy file: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return consolidate.Policy{}, fmt.Errorf("policy file: %w", err)
	}
	return policy, nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvList splits a comma separated value, dropping blanks.
func getenvList(key string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

// getenvMap parses "key=value,key=value".
func getenvMap(key string) map[string]string {
	out := make(map[string]string)
	for _, item := range getenvList(key) {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
