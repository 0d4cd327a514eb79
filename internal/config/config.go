// Package config loads the routing core's TOML configuration file,
// applying environment-variable and CLI-flag overrides on top of it in
// that order (file < environment < flags).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the top-level configuration record.
type Config struct {
	Core          Core
	Translations  []Translation
	DLRStore      DLRStore
	Postgres      PostgresConnection
	MSSQL         MSSQLConnection
	Mongo         MongoConnection
	OTA           []OTAGroup
	Observability Observability
}

// Core carries the settings spec.md's "global configuration group"
// applies to every request, independent of any one translation.
type Core struct {
	BearerboxHost          string
	BearerboxPort          int
	SendsmsPort            int
	AdminPort              int
	GlobalSender           string
	NumberChars            string
	ReplyCouldNotFetch     string
	ReplyCouldNotRepresent string
	WhiteListFile          string
	BlackListFile          string
	WhiteList              []string
	BlackList              []string
	ObeyWorkers            int
	TryHTTP                bool
}

// Translation mirrors internal/urltrans.Translation as TOML-decodable
// fields; BuildTranslations converts these into the runtime type.
type Translation struct {
	Name, Username, Password string
	SMSCID, Keyword, Pattern string
	Type                     string // "text" | "file" | "get-url" | "post-url" | "sendsms"
	FakedSender              string
	ForcedSMSC, DefaultSMSC  string
	AllowIP, DenyIP          []string
	WhiteList, BlackList     []string
	Header, Footer           string
	SplitSuffix, SplitChars  string
	Concatenation            bool
	MaxMessages              int
	Prefix, Suffix           string
	AcceptXKannelHeaders     bool
	SendSender               bool
	OmitEmpty                bool
	AssumePlainText          bool
}

// OTAGroup mirrors internal/ingress.OTAConfig as TOML-decodable fields.
type OTAGroup struct {
	ID          string
	Bearer      string
	IP          string
	Connection  string
	Phone       string
	Auth        string
	User        string
	Passwd      string
	CallType    string
	Speed       string
	URL         string
	Description string
}

// DLRStore selects and configures the DLR persistence back-end.
type DLRStore struct {
	Type       string // "sql" | "mongo"
	Dialect    string // "postgres" | "mssql", when Type == "sql"
	Table      string
	Collection string // when Type == "mongo"
	PoolSize   int
}

type PostgresConnection struct {
	Host, Database, User, Password string
	Port                           int
	SSLMode                        string
}

type MSSQLConnection struct {
	Host, Database, User, Password string
	Port                           int
}

type MongoConnection struct {
	URI, Database string
}

// Observability carries the logging/metrics knobs SPEC_FULL's ambient
// stack requires even though spec.md's Non-goals exclude a dedicated
// metrics subsystem.
type Observability struct {
	LogLevel   string
	KafkaBrokers []string
	DLRTopic     string
}

// Load reads path as TOML, applies .env-sourced and process environment
// overrides, and returns the decoded Config. A missing .env file next to
// path is not an error; a missing or malformed config file is.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(envFileNextTo(path))

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func envFileNextTo(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".env")
}

func applyEnvOverrides(cfg *Config) {
	cfg.Core.BearerboxHost = getEnv("SMSBOX_BEARERBOX_HOST", cfg.Core.BearerboxHost)
	cfg.Core.BearerboxPort = getEnvInt("SMSBOX_BEARERBOX_PORT", cfg.Core.BearerboxPort)
	cfg.Core.SendsmsPort = getEnvInt("SMSBOX_SENDSMS_PORT", cfg.Core.SendsmsPort)
	cfg.Core.GlobalSender = getEnv("SMSBOX_GLOBAL_SENDER", cfg.Core.GlobalSender)
	cfg.Core.ObeyWorkers = getEnvInt("SMSBOX_OBEY_WORKERS", cfg.Core.ObeyWorkers)
	cfg.Observability.LogLevel = getEnv("SMSBOX_LOG_LEVEL", cfg.Observability.LogLevel)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return defaultValue
}
