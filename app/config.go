package oneday

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/exp/maps"

	"github.com/spf13/viper"
)

type Config struct {
	// Port is the Port number to listen on. The default is 3000.
	Port int `validate:"required,port" default:"3000"`
	// Hostname is the Hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required" default:"0.0.0.0"`
	Match    struct {
		// MaxRooms caps how many rooms a user may occupy at once.
		MaxRooms int `validate:"required,min=1"`
	}
	Reset struct {
		// Timezone is the IANA timezone that defines midnight. Empty means
		// the process-local timezone.
		Timezone string `validate:"omitempty,timezone"`
		// WarningLead is how long before midnight the warning broadcast
		// fires. Zero disables the warning.
		WarningLead time.Duration
	}
	SQLite struct {
		// File is the path to the SQLite database file backing the day
		// archive. Empty disables the archive entirely.
		File string
		// Migrations is the path to the directory that the migration files
		// reside in.
		Migrations string `validate:"required_with=File"`
	}
	// AllowedOrigins is a list of origins that are allowed to connect to
	// the server. The default is ["*"].
	AllowedOrigins []string
	valid          bool
}

// LoadConfig loads the configuration from the config file and environment
// variables. Any invalid configuration will not be loaded, and the error
// will be caught in the validation step.
func LoadConfig() (*Config, error) {
	config := &Config{}
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("port", 3000)
	viper.SetDefault("hostname", "0.0.0.0")
	viper.SetDefault("allowedorigins", "*")

	viper.SetDefault("match.maxrooms", 5)

	viper.SetDefault("reset.timezone", "")
	viper.SetDefault("reset.warninglead", "10m")

	viper.SetDefault("sqlite.file", "")
	viper.SetDefault("sqlite.migrations", "./migrations")

	if err := viper.ReadInConfig(); err != nil {
		// the config file is optional, env and defaults suffice
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		// defer error to validation step
		return config, nil
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.valid {
		return nil
	}
	err := validate.Struct(c)
	if err != nil {
		return err
	}
	c.valid = true
	return nil
}

func FormatValidationErrors(err error) string {
	errors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ""
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errors.Translate(trans)

	var sb strings.Builder
	for _, v := range maps.Values(translated) {
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}
