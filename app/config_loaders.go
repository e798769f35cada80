package oneday

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ConfigLoader interface {
	Load() (*Config, error)
}

// EnvConfigLoader loads the configuration from environment variables,
// reading a .env file first when one exists. The ALLOWED_ORIGINS
// environment variable is expected to be a comma-separated list of
// origins that are allowed to connect to the server.
type EnvConfigLoader struct {
}

func (l *EnvConfigLoader) Load() (*Config, error) {
	// a missing .env file is fine, plain env vars still apply
	_ = godotenv.Load()

	config := &Config{}

	config.Port, _ = strconv.Atoi(getEnv("PORT"))
	config.Hostname = getEnv("HOSTNAME")
	config.AllowedOrigins = strings.Split(getEnv("ALLOWED_ORIGINS"), ",")

	config.Match.MaxRooms, _ = strconv.Atoi(getEnv("MATCH_MAXROOMS"))

	config.Reset.Timezone = getEnv("RESET_TIMEZONE")
	if lead := getEnv("RESET_WARNINGLEAD"); lead != "" {
		config.Reset.WarningLead, _ = time.ParseDuration(lead)
	}

	config.SQLite.File = getEnv("SQLITE_FILE")
	config.SQLite.Migrations = getEnv("SQLITE_MIGRATIONS")

	return config, nil
}

type DefaultConfigLoader struct {
}

func (l *DefaultConfigLoader) Load() (*Config, error) {
	config := &Config{}
	config.Port = 3000
	config.Hostname = "0.0.0.0"
	config.AllowedOrigins = []string{"*"}
	config.Match.MaxRooms = 5
	config.Reset.WarningLead = 10 * time.Minute
	config.SQLite.Migrations = "./migrations"
	return config, nil
}

// Utility function to get an environment variable with a default value
func getEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return ""
	}
	return value
}
