package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override configuration keys,
// e.g. EMLX_DB_PATH.
const EnvPrefix = "EMLX"

// Config holds application configuration
type Config struct {
	// Server settings
	Host        string `mapstructure:"host"`
	Port        string `mapstructure:"port"`
	OpenBrowser bool   `mapstructure:"open_browser"`

	// Database settings
	DBPath string `mapstructure:"db_path"`

	// Source folder holding .eml and .mbox files
	EmailsPath string `mapstructure:"emails_path"`

	// Directory the extract command writes into
	OutputDir string `mapstructure:"output_dir"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Parsing and projection
	MaxDepth       int      `mapstructure:"max_depth"`
	RequiredFields []string `mapstructure:"required_fields"`
	HTMLToText     bool     `mapstructure:"html_to_text"`

	// Indexing
	Workers int `mapstructure:"workers"`

	// Largest message accepted by POST /parse
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	// Use ~/.eml-extract for data directory
	dataDir := filepath.Join(homeDir, ".eml-extract")

	return &Config{
		Host:            "localhost",
		Port:            "8080",
		DBPath:          filepath.Join(dataDir, "messages.db"),
		EmailsPath:      "./emails",
		OutputDir:       ".",
		LogLevel:        "info",
		LogFormat:       "text",
		MaxDepth:        100,
		RequiredFields:  []string{"date"},
		Workers:         runtime.NumCPU() * 2,
		MaxMessageBytes: 25 << 20,
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"host":              "host",
	"port":              "port",
	"open-browser":      "open_browser",
	"db":                "db_path",
	"emails":            "emails_path",
	"out":               "output_dir",
	"log-level":         "log_level",
	"log-format":        "log_format",
	"max-depth":         "max_depth",
	"required":          "required_fields",
	"html-to-text":      "html_to_text",
	"workers":           "workers",
	"max-message-bytes": "max_message_bytes",
}

// RegisterFlags attaches the flags shared by every command to cmd as persistent flags.
func RegisterFlags(cmd *cobra.Command) {
	def := Default()

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("db", def.DBPath, "Path to the SQLite database")
	flags.String("emails", def.EmailsPath, "Directory holding .eml and .mbox files")
	flags.String("log-level", def.LogLevel, "Logging level: debug, info, warn, error")
	flags.String("log-format", def.LogFormat, "Log format: text or json")
	flags.Int("max-depth", def.MaxDepth, "Maximum MIME nesting depth")
	flags.StringSlice("required", def.RequiredFields, "Fields a projection must contain")
	flags.Bool("html-to-text", def.HTMLToText, "Render the HTML body as text when a message has no text body")
}

// RegisterServeFlags attaches the flags of the serve command.
func RegisterServeFlags(cmd *cobra.Command) {
	def := Default()

	flags := cmd.Flags()
	flags.String("host", def.Host, "Address to listen on")
	flags.String("port", def.Port, "Port to listen on")
	flags.Bool("open-browser", def.OpenBrowser, "Open the API root in a browser once listening")
	flags.Int64("max-message-bytes", def.MaxMessageBytes, "Largest message accepted by POST /parse")
}

// RegisterIndexFlags attaches the flags of commands that index.
func RegisterIndexFlags(cmd *cobra.Command) {
	cmd.Flags().Int("workers", Default().Workers, "Number of concurrent indexing workers")
}

// RegisterExtractFlags attaches the flags of the extract command.
func RegisterExtractFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("out", "o", Default().OutputDir, "Directory to write fields.json, message.txt and message.html into")
}

// Load resolves the configuration for cmd. Precedence, highest first: flags set on
// the command line, EMLX_* environment variables, the config file, defaults.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	path := ""
	if f := flags.Lookup("config"); f != nil {
		path = f.Value.String()
	}
	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("open_browser", def.OpenBrowser)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("emails_path", def.EmailsPath)
	v.SetDefault("output_dir", def.OutputDir)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("max_depth", def.MaxDepth)
	v.SetDefault("required_fields", def.RequiredFields)
	v.SetDefault("html_to_text", def.HTMLToText)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("max_message_bytes", def.MaxMessageBytes)
}

// readConfigFile reads path, or emlx.yaml from the working directory or
// ~/.eml-extract when path is empty. Only an explicitly named file must exist.
func readConfigFile(v *viper.Viper, path string) error {
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("emlx")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".eml-extract"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail later in a confusing way.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max_message_bytes must be positive, got %d", c.MaxMessageBytes)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}
