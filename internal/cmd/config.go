package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Bigouden/openstack-swift-exporter/internal/objectstore"
)

const (
	envName               = "OPENSTACK_SWIFT_EXPORTER_NAME"
	envAddress            = "OPENSTACK_SWIFT_EXPORTER_ADDRESS"
	envPort               = "OPENSTACK_SWIFT_EXPORTER_PORT"
	envContainer          = "OPENSTACK_SWIFT_EXPORTER_LIST_CONTAINER"
	envPrefix             = "OPENSTACK_SWIFT_EXPORTER_LIST_OPTIONS_PREFIX"
	envDelimiter          = "OPENSTACK_SWIFT_EXPORTER_LIST_OPTIONS_DELIMITER"
	envAuthType           = "AUTH_TYPE"
	envRetries            = "OPENSTACK_SWIFT_EXPORTER_RETRIES"
	envLogLevel           = "OPENSTACK_SWIFT_EXPORTER_LOGLEVEL"
	envTimezone           = "TZ"
	envDisableCompression = "OPENSTACK_SWIFT_EXPORTER_DISABLE_COMPRESSION"
	envEnableOpenMetrics  = "OPENSTACK_SWIFT_EXPORTER_ENABLE_OPENMETRICS"
	envScrapeTimeout      = "OPENSTACK_SWIFT_EXPORTER_SCRAPE_TIMEOUT"
	envFailFast           = "OPENSTACK_SWIFT_EXPORTER_FAIL_FAST"
	envCoalesceScrapes    = "OPENSTACK_SWIFT_EXPORTER_COALESCE_SCRAPES"
	envExporterMetrics    = "OPENSTACK_SWIFT_EXPORTER_EXPORTER_METRICS"
	envHeartbeat          = "OPENSTACK_SWIFT_EXPORTER_HEARTBEAT"
	envOneshot            = "OPENSTACK_SWIFT_EXPORTER_ONESHOT"
	envEnvFile            = "OPENSTACK_SWIFT_EXPORTER_ENV_FILE"
)

const (
	DefaultName          = "openstack-swift-exporter"
	DefaultAddress       = "0.0.0.0"
	DefaultPort          = 8124
	DefaultRetries       = 1
	DefaultLogLevel      = "INFO"
	DefaultTimezone      = "Europe/Paris"
	DefaultScrapeTimeout = 60 * time.Second
	DefaultHeartbeat     = time.Minute
)

// flagEnv maps every flag to the environment variable providing its default.
var flagEnv = map[string]string{
	"name":                envName,
	"address":             envAddress,
	"port":                envPort,
	"container":           envContainer,
	"prefix":              envPrefix,
	"delimiter":           envDelimiter,
	"auth-type":           envAuthType,
	"retries":             envRetries,
	"log-level":           envLogLevel,
	"timezone":            envTimezone,
	"disable-compression": envDisableCompression,
	"enable-openmetrics":  envEnableOpenMetrics,
	"scrape-timeout":      envScrapeTimeout,
	"fail-fast":           envFailFast,
	"coalesce-scrapes":    envCoalesceScrapes,
	"exporter-metrics":    envExporterMetrics,
	"heartbeat":           envHeartbeat,
	"oneshot":             envOneshot,
}

type Config struct {
	Name               string
	Address            string
	Port               int
	Container          string
	Prefix             string
	Delimiter          string
	AuthType           string
	Auth               objectstore.AuthConfig
	Retries            int
	LogLevel           string
	Timezone           string
	DisableCompression bool
	EnableOpenMetrics  bool
	ScrapeTimeout      time.Duration
	FailFast           bool
	CoalesceScrapes    bool
	ExporterMetrics    bool
	Heartbeat          time.Duration
	Oneshot            bool
	EnvFile            string

	location *time.Location
	// logLevelPinned is set when the log level comes from a flag or the
	// process environment, which env file reloads must not override.
	logLevelPinned bool
}

func (c Config) ListOptions() objectstore.ListOptions {
	return objectstore.ListOptions{Prefix: c.Prefix, Delimiter: c.Delimiter}
}

func (c Config) ListenAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// LogValue omits credentials.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", c.Name),
		slog.String("listen_address", c.ListenAddress()),
		slog.String("container", c.Container),
		slog.String("prefix", c.Prefix),
		slog.String("delimiter", c.Delimiter),
		slog.String("auth_type", string(c.Auth.Type)),
		slog.String("auth_url", c.Auth.AuthURL),
		slog.String("username", c.Auth.Username),
		slog.Int("retries", c.Retries),
		slog.String("log_level", c.LogLevel),
		slog.String("timezone", c.Timezone),
		slog.Bool("disable_compression", c.DisableCompression),
		slog.Bool("enable_openmetrics", c.EnableOpenMetrics),
		slog.Duration("scrape_timeout", c.ScrapeTimeout),
		slog.Bool("fail_fast", c.FailFast),
		slog.Bool("coalesce_scrapes", c.CoalesceScrapes),
		slog.Bool("exporter_metrics", c.ExporterMetrics),
		slog.Duration("heartbeat", c.Heartbeat),
		slog.Bool("oneshot", c.Oneshot),
		slog.String("env_file", c.EnvFile),
	)
}

type configBuilder struct {
	cfg    Config
	getenv func(string) string
	errs   []error
}

func newConfigBuilder(getenv func(string) string) *configBuilder {
	b := &configBuilder{getenv: getenv}
	b.cfg = Config{
		Name:               b.getenvDefault(envName, DefaultName),
		Address:            b.getenvDefault(envAddress, DefaultAddress),
		Port:               b.getenvIntDefault(envPort, DefaultPort),
		Container:          b.getenvDefault(envContainer, ""),
		Prefix:             b.getenvDefault(envPrefix, ""),
		Delimiter:          b.getenvDefault(envDelimiter, ""),
		AuthType:           b.getenvDefault(envAuthType, string(objectstore.AuthKeystoneV3)),
		Retries:            b.getenvIntDefault(envRetries, DefaultRetries),
		LogLevel:           strings.ToUpper(b.getenvDefault(envLogLevel, DefaultLogLevel)),
		Timezone:           b.getenvDefault(envTimezone, DefaultTimezone),
		DisableCompression: b.getenvBoolDefault(envDisableCompression, false),
		EnableOpenMetrics:  b.getenvBoolDefault(envEnableOpenMetrics, false),
		ScrapeTimeout:      b.getenvDurationDefault(envScrapeTimeout, DefaultScrapeTimeout),
		FailFast:           b.getenvBoolDefault(envFailFast, true),
		CoalesceScrapes:    b.getenvBoolDefault(envCoalesceScrapes, false),
		ExporterMetrics:    b.getenvBoolDefault(envExporterMetrics, false),
		Heartbeat:          b.getenvDurationDefault(envHeartbeat, DefaultHeartbeat),
		Oneshot:            b.getenvBoolDefault(envOneshot, false),
		EnvFile:            b.getenvDefault(envEnvFile, ""),
	}
	return b
}

func (b *configBuilder) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&b.cfg.Name, "name", b.cfg.Name, "Exporter name, exposed as the job label")
	fs.StringVar(&b.cfg.Address, "address", b.cfg.Address, "Address to listen on")
	fs.IntVar(&b.cfg.Port, "port", b.cfg.Port, "Port to listen for requests")
	fs.StringVar(&b.cfg.Container, "container", b.cfg.Container, "Swift container to list")
	fs.StringVar(&b.cfg.Prefix, "prefix", b.cfg.Prefix, "Only list objects with this prefix")
	fs.StringVar(&b.cfg.Delimiter, "delimiter", b.cfg.Delimiter, "Listing delimiter (single character)")
	fs.StringVar(&b.cfg.AuthType, "auth-type", b.cfg.AuthType, "Authentication type: legacy, keystone-v2 or keystone-v3")
	fs.IntVar(&b.cfg.Retries, "retries", b.cfg.Retries, "Retries of the swift client on transient errors")
	fs.StringVar(&b.cfg.LogLevel, "log-level", b.cfg.LogLevel, "Log level: DEBUG, INFO, WARNING, ERROR or CRITICAL")
	fs.StringVar(&b.cfg.Timezone, "timezone", b.cfg.Timezone, "Timezone of log timestamps")
	fs.BoolVar(&b.cfg.DisableCompression, "disable-compression", b.cfg.DisableCompression, "Never compress metrics responses")
	fs.BoolVar(&b.cfg.EnableOpenMetrics, "enable-openmetrics", b.cfg.EnableOpenMetrics, "Serve OpenMetrics to clients asking for it")
	fs.DurationVar(&b.cfg.ScrapeTimeout, "scrape-timeout", b.cfg.ScrapeTimeout, "Maximum duration of one scrape (0 disables)")
	fs.BoolVar(&b.cfg.FailFast, "fail-fast", b.cfg.FailFast, "Exit on the first listing error instead of failing only the scrape")
	fs.BoolVar(&b.cfg.CoalesceScrapes, "coalesce-scrapes", b.cfg.CoalesceScrapes, "Share one container listing between concurrent scrapes")
	fs.BoolVar(&b.cfg.ExporterMetrics, "exporter-metrics", b.cfg.ExporterMetrics, "Also expose the exporter's own metrics")
	fs.DurationVar(&b.cfg.Heartbeat, "heartbeat", b.cfg.Heartbeat, "Interval of the debug heartbeat log (0 disables)")
	fs.BoolVar(&b.cfg.Oneshot, "oneshot", b.cfg.Oneshot, "Collect once, print metrics and exit")
	fs.StringVar(&b.cfg.EnvFile, "env-file", b.cfg.EnvFile, "File of KEY=VALUE lines used where the environment is unset")
}

func (b *configBuilder) finalize(fs *pflag.FlagSet) error {
	b.cfg.logLevelPinned = fs.Changed("log-level") || b.getenv(envLogLevel) != ""

	lookup := b.getenv
	if b.cfg.EnvFile != "" {
		values, err := godotenv.Read(b.cfg.EnvFile)
		if err != nil {
			return fmt.Errorf("failed to read env file %s: %w", b.cfg.EnvFile, err)
		}
		b.applyEnvFile(fs, values)
		lookup = layeredGetenv(b.getenv, values)
	}

	errs := b.errs
	if b.cfg.Container == "" {
		errs = append(errs, fmt.Errorf("%s environment variable must exist", envContainer))
	}
	if b.cfg.Port < 1 || b.cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be 1-65535, got %d", b.cfg.Port))
	}
	if utf8.RuneCountInString(b.cfg.Delimiter) > 1 {
		errs = append(errs, fmt.Errorf("delimiter must be a single character, got %q", b.cfg.Delimiter))
	}
	if b.cfg.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", b.cfg.Retries))
	}
	if b.cfg.ScrapeTimeout < 0 {
		errs = append(errs, fmt.Errorf("scrape timeout must not be negative, got %s", b.cfg.ScrapeTimeout))
	}

	loc, err := time.LoadLocation(b.cfg.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("TZ invalid: %s", b.cfg.Timezone))
	}
	b.cfg.location = loc

	authType, err := objectstore.ParseAuthType(b.cfg.AuthType)
	if err != nil {
		errs = append(errs, err)
	} else {
		auth, err := objectstore.AuthFromEnv(authType, lookup)
		if err != nil {
			errs = append(errs, err)
		}
		b.cfg.Auth = auth
	}

	return errors.Join(errs...)
}

// applyEnvFile sets every flag that was neither passed on the command line
// nor provided by the process environment from the env file values.
func (b *configBuilder) applyEnvFile(fs *pflag.FlagSet, values map[string]string) {
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagEnv[f.Name]
		if !ok || f.Changed || b.getenv(key) != "" {
			return
		}
		v := values[key]
		if v == "" {
			return
		}
		if f.Name == "log-level" {
			v = strings.ToUpper(v)
		}
		if err := fs.Set(f.Name, v); err != nil {
			b.errs = append(b.errs, fmt.Errorf("%s from env file: %w", key, err))
		}
	})
}

func layeredGetenv(getenv func(string) string, values map[string]string) func(string) string {
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return values[key]
	}
}

func (b *configBuilder) getenvDefault(key, def string) string {
	if v := b.getenv(key); v != "" {
		return v
	}
	return def
}

func (b *configBuilder) getenvIntDefault(key string, def int) int {
	if v := b.getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
		b.errs = append(b.errs, fmt.Errorf("%s must be int, got %q", key, v))
	}
	return def
}

func (b *configBuilder) getenvDurationDefault(key string, def time.Duration) time.Duration {
	if v := b.getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
		b.errs = append(b.errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return def
}

func (b *configBuilder) getenvBoolDefault(key string, def bool) bool {
	if v := b.getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
		b.errs = append(b.errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return def
}
