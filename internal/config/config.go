/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
)

// Config holds all configuration for the application
type Config struct {
	Database       DatabaseConfig
	Guardrails     sqlguard.Policy
	GenAI          GenAIConfig
	Server         ServerConfig
	Log            LogConfig
	DisplayRowCap  int           // Rows returned to the caller; the rest is reported as truncated
	RequestTimeout time.Duration // Deadline for one question, generation and correction included
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Dialect                        string
	Host                           string
	Port                           int
	User                           string
	Password                       string
	DBName                         string
	SSLMode                        string
	CloudSQLInstanceConnectionName string
	UsePrivateIP                   bool
	PoolSize                       int
	MaxOverflow                    int
}

// GenAIConfig configures the SQL generation model.
type GenAIConfig struct {
	APIKey    string
	Model     string
	Summarize bool // Ask the model for a natural-language answer after each query
}

type ServerConfig struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

// Keys read from the environment, an optional config file and bound flags.
const (
	KeyConfigFile        = "CONFIG"
	KeyDBDialect         = "DB_DIALECT"
	KeyDBHost            = "DB_HOST"
	KeyDBPort            = "DB_PORT"
	KeyDBName            = "DB_NAME"
	KeyDBUser            = "DB_USER"
	KeyDBPassword        = "DB_PASSWORD"
	KeyDBSSLMode         = "DB_SSLMODE"
	KeyDBPoolSize        = "DB_POOL_SIZE"
	KeyDBMaxOverflow     = "DB_MAX_OVERFLOW"
	KeyCloudSQLInstance  = "CLOUDSQL_INSTANCE_CONNECTION_NAME"
	KeyCloudSQLPrivateIP = "CLOUDSQL_USE_PRIVATE_IP"
	KeyKAnonymity        = "K_ANONYMITY"
	KeyDefaultLimit      = "DEFAULT_QUERY_LIMIT"
	KeyMaxRowsReturn     = "MAX_ROWS_RETURN"
	KeyQueryTimeout      = "QUERY_TIMEOUT_SECONDS"
	KeyMaxAttempts       = "MAX_RETRY_ATTEMPTS"
	KeyBlockedOperations = "BLOCKED_OPERATIONS"
	KeyEnforceKAnonymity = "ENFORCE_K_ANONYMITY"
	KeyDisplayRowCap     = "DISPLAY_ROW_CAP"
	KeyGeminiAPIKey      = "GEMINI_API_KEY"
	KeyLLMModel          = "LLM_MODEL"
	KeySummarizeAnswers  = "SUMMARIZE_ANSWERS"
	KeyRequestTimeout    = "REQUEST_TIMEOUT_SECONDS"
	KeyServerAddr        = "SERVER_ADDR"
	KeyLogLevel          = "LOG_LEVEL"
	KeyLogFormat         = "LOG_FORMAT"
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	policy := sqlguard.DefaultPolicy()

	v.SetDefault(KeyDBDialect, "postgres")
	v.SetDefault(KeyDBHost, "localhost")
	v.SetDefault(KeyDBPort, 5432)
	v.SetDefault(KeyDBName, "credit_analytics")
	v.SetDefault(KeyDBUser, "chatbot_reader")
	v.SetDefault(KeyDBPassword, "")
	v.SetDefault(KeyDBSSLMode, "disable")
	v.SetDefault(KeyDBPoolSize, 5)
	v.SetDefault(KeyDBMaxOverflow, 10)
	v.SetDefault(KeyCloudSQLInstance, "")
	v.SetDefault(KeyCloudSQLPrivateIP, false)

	v.SetDefault(KeyKAnonymity, policy.KAnonymity)
	v.SetDefault(KeyDefaultLimit, policy.DefaultLimit)
	v.SetDefault(KeyMaxRowsReturn, policy.MaxRowsReturn)
	v.SetDefault(KeyQueryTimeout, int(policy.QueryTimeout/time.Second))
	v.SetDefault(KeyMaxAttempts, policy.MaxAttempts)
	v.SetDefault(KeyBlockedOperations, strings.Join(policy.BlockedOperations, ","))
	v.SetDefault(KeyEnforceKAnonymity, false)

	v.SetDefault(KeyDisplayRowCap, 100)
	v.SetDefault(KeyGeminiAPIKey, "")
	v.SetDefault(KeyLLMModel, "gemini-2.0-flash")
	v.SetDefault(KeySummarizeAnswers, true)
	v.SetDefault(KeyRequestTimeout, 60)
	v.SetDefault(KeyServerAddr, ":8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// Load reads a .env file from the working directory when present, then the
// optional config file named by CONFIG, then the environment. Values bound
// to flags on v take precedence over all of them.
func Load(v *viper.Viper) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env file: %w", err)
	}

	SetDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		Database: DatabaseConfig{
			Dialect:                        v.GetString(KeyDBDialect),
			Host:                           v.GetString(KeyDBHost),
			Port:                           v.GetInt(KeyDBPort),
			User:                           v.GetString(KeyDBUser),
			Password:                       v.GetString(KeyDBPassword),
			DBName:                         v.GetString(KeyDBName),
			SSLMode:                        v.GetString(KeyDBSSLMode),
			CloudSQLInstanceConnectionName: v.GetString(KeyCloudSQLInstance),
			UsePrivateIP:                   v.GetBool(KeyCloudSQLPrivateIP),
			PoolSize:                       v.GetInt(KeyDBPoolSize),
			MaxOverflow:                    v.GetInt(KeyDBMaxOverflow),
		},
		Guardrails: sqlguard.Policy{
			KAnonymity:        v.GetInt(KeyKAnonymity),
			DefaultLimit:      v.GetInt(KeyDefaultLimit),
			MaxRowsReturn:     v.GetInt(KeyMaxRowsReturn),
			QueryTimeout:      time.Duration(v.GetInt(KeyQueryTimeout)) * time.Second,
			MaxAttempts:       v.GetInt(KeyMaxAttempts),
			BlockedOperations: splitList(v.Get(KeyBlockedOperations)),
			EnforceKAnonymity: v.GetBool(KeyEnforceKAnonymity),
		},
		GenAI: GenAIConfig{
			APIKey: v.GetString(KeyGeminiAPIKey),
			Model:     v.GetString(KeyLLMModel),
			Summarize: v.GetBool(KeySummarizeAnswers),
		},
		Server: ServerConfig{Addr: v.GetString(KeyServerAddr)},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
		DisplayRowCap:  v.GetInt(KeyDisplayRowCap),
		RequestTimeout: time.Duration(v.GetInt(KeyRequestTimeout)) * time.Second,
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c Config) Validate() error {
	if err := c.Guardrails.Validate(); err != nil {
		return fmt.Errorf("invalid guardrails: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}
	if c.DisplayRowCap < 1 {
		return fmt.Errorf("%s must be positive, got %d", KeyDisplayRowCap, c.DisplayRowCap)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyRequestTimeout, c.RequestTimeout)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("%s must be json or console, got %q", KeyLogFormat, c.Log.Format)
	}
	return nil
}

// Validate checks the connection settings for the configured dialect.
func (d DatabaseConfig) Validate() error {
	if d.Dialect == "" {
		return fmt.Errorf("dialect is required")
	}
	if strings.HasPrefix(d.Dialect, "cloudsql") {
		if d.CloudSQLInstanceConnectionName == "" {
			return fmt.Errorf("%s is required for dialect %s", KeyCloudSQLInstance, d.Dialect)
		}
	} else {
		if d.Host == "" {
			return fmt.Errorf("host is required")
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("invalid port %d", d.Port)
		}
	}
	if d.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if d.PoolSize < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", d.PoolSize)
	}
	if d.MaxOverflow < 0 {
		return fmt.Errorf("max overflow cannot be negative, got %d", d.MaxOverflow)
	}
	return nil
}

// splitList accepts a comma separated string or a list from a config file.
func splitList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
