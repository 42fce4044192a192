package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Settings holds everything the API and the admin CLI read from the environment.
type Settings struct {
	Environment string
	GinMode     string
	LogLevel    string
	ScreensFile string
	Server      ServerSettings
	Database    DatabaseSettings
	JWT         JWTSettings
	CORS        CORSSettings
	Mail        MailSettings
}

type ServerSettings struct {
	Port string
}

// DatabaseSettings selects the gorm dialector and connection pool.
type DatabaseSettings struct {
	Driver       string // mysql, postgres or sqlite
	Host         string
	Port         string
	Name         string
	Username     string
	Password     string
	SSLMode      string
	SQLitePath   string
	DebugSQL     bool
	Quiet        bool
	MaxIdleConns int
	MaxOpenConns int
}

type JWTSettings struct {
	Secret string
}

type CORSSettings struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

type MailSettings struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string
	SkipTLSVerify bool
}

// LoadSettings reads configuration from environment variables.
// Call godotenv.Load before this to pick up a .env file.
func LoadSettings() (*Settings, error) {
	environment := strings.ToLower(getEnvOrDefault("ENVIRONMENT", "development"))

	s := &Settings{
		Environment: environment,
		GinMode:     os.Getenv("GIN_MODE"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		ScreensFile: getEnvOrDefault("SCREENS_FILE", "config/screens.yaml"),
		Server: ServerSettings{
			Port: getEnvOrDefault("SERVER_PORT", "8080"),
		},
		Database: DatabaseSettings{
			Driver:       strings.ToLower(getEnvOrDefault("DB_DRIVER", "mysql")),
			Host:         os.Getenv("DB_HOST"),
			Port:         os.Getenv("DB_PORT"),
			Name:         os.Getenv("DB_DATABASE"),
			Username:     os.Getenv("DB_USERNAME"),
			Password:     os.Getenv("DB_PASSWORD"), // No default for security
			SSLMode:      getEnvOrDefault("DB_SSLMODE", "disable"),
			SQLitePath:   getEnvOrDefault("DB_SQLITE_PATH", "workflow.db"),
			DebugSQL:     getBoolOrDefault("DEBUG_SQL", false),
			MaxIdleConns: getIntOrDefault("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns: getIntOrDefault("DB_MAX_OPEN_CONNS", 50),
		},
		JWT: JWTSettings{
			Secret: os.Getenv("JWT_SECRET"),
		},
		CORS: CORSSettings{
			AllowedOrigins:   parseCommaSeparated(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
			AllowedMethods:   parseCommaSeparated(getEnvOrDefault("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")),
			AllowedHeaders:   parseCommaSeparated(getEnvOrDefault("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-Request-ID")),
			AllowCredentials: getBoolOrDefault("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getIntOrDefault("CORS_MAX_AGE", 3600),
		},
		Mail: MailSettings{
			Host:          os.Getenv("SMTP_HOST"),
			Port:          getIntOrDefault("SMTP_PORT", 587),
			User:          os.Getenv("SMTP_USER"),
			Pass:          os.Getenv("SMTP_PASS"),
			From:          os.Getenv("SMTP_FROM"), // e.g. "Statistics Workflow <no-reply@stats.gov>"
			SkipTLSVerify: os.Getenv("SMTP_SKIP_TLS_VERIFY") == "1",
		},
	}

	// In production, suppress SQL logs unless explicitly re-enabled via DEBUG_SQL=true.
	s.Database.Quiet = environment == "production" && !s.Database.DebugSQL

	if err := s.Database.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the fields required by the selected driver.
func (c DatabaseSettings) Validate() error {
	switch c.Driver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("DB_SQLITE_PATH is required for the sqlite driver")
		}
		return nil
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
	if c.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Username == "" {
		return fmt.Errorf("DB_USERNAME is required")
	}
	if c.Name == "" {
		return fmt.Errorf("DB_DATABASE is required")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// parseCommaSeparated splits a comma-separated string into a slice of trimmed strings
func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
