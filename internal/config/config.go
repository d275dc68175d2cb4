// Package config loads the sectioned sitelaunch configuration file.
//
// The file is TOML. Every value is available both through the typed Config
// struct and through a flat namespace keyed by "<section>_<key>", e.g.
// "namecheap_api_key". Secrets may be supplied through the environment (or a
// .env file) instead of the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// SearchPaths is the lookup order when no explicit path is given
var SearchPaths = []string{"sitelaunch.toml", "/etc/sitelaunch/sitelaunch.toml"}

// Config holds all configuration for a run
type Config struct {
	Defaults   DefaultsConfig    `toml:"defaults"`
	Logging    LoggingConfig     `toml:"logging"`
	Transport  TransportConfig   `toml:"transport"`
	Namecheap  NamecheapConfig   `toml:"namecheap"`
	Dynadot    DynadotConfig     `toml:"dynadot"`
	CyberPanel CyberPanelConfig  `toml:"cyberpanel"`
	Contact    ContactConfig     `toml:"contact"`
	Sources    map[string]string `toml:"sources"`
	DNS        DNSConfig         `toml:"dns"`
	History    HistoryConfig     `toml:"history"`
	Metrics    MetricsConfig     `toml:"metrics"`
	Notify     NotifyConfig      `toml:"notify"`
	S3         S3Config          `toml:"s3"`

	flat map[string]string
	path string
}

// DefaultsConfig holds run-wide defaults
type DefaultsConfig struct {
	Registrar   string `toml:"registrar"`
	Panel       string `toml:"panel"`
	NotifyEmail string `toml:"notify_email"`
	ServerIP    string `toml:"server_ip"`
	WorkDir     string `toml:"work_dir"`
	RecordsDir  string `toml:"records_dir"`
	LogDir      string `toml:"log_dir"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// TransportConfig holds outbound HTTP settings
type TransportConfig struct {
	TimeoutSeconds    int `toml:"timeout_seconds"`
	RequestsPerMinute int `toml:"requests_per_minute"`
	// DownloadTimeoutSeconds bounds one archive download
	DownloadTimeoutSeconds int `toml:"download_timeout_seconds"`
}

// NamecheapConfig holds Namecheap API credentials
type NamecheapConfig struct {
	APIUser  string `toml:"api_user"`
	APIKey   string `toml:"api_key"`
	Username string `toml:"username"`
	ClientIP string `toml:"client_ip"`
	Endpoint string `toml:"endpoint"`
	Sandbox  bool   `toml:"sandbox"`
	Years    int    `toml:"years"`
}

// DynadotConfig holds Dynadot API credentials
type DynadotConfig struct {
	APIKey      string   `toml:"api_key"`
	Endpoint    string   `toml:"endpoint"`
	Nameservers []string `toml:"nameservers"`
	Years       int      `toml:"years"`
}

// CyberPanelConfig holds control-panel CLI settings
type CyberPanelConfig struct {
	Binary      string   `toml:"binary"`
	Package     string   `toml:"package"`
	Owner       string   `toml:"owner"`
	AdminEmail  string   `toml:"admin_email"`
	PHPDir      string   `toml:"php_dir"`
	PHPVersions []string `toml:"php_versions"`
	WebRootBase string   `toml:"web_root_base"`
}

// ContactConfig is the registrant profile offered alongside the registrar's saved addresses
type ContactConfig struct {
	Label         string `toml:"label"`
	FirstName     string `toml:"first_name"`
	LastName      string `toml:"last_name"`
	Organization  string `toml:"organization"`
	Address1      string `toml:"address1"`
	Address2      string `toml:"address2"`
	City          string `toml:"city"`
	StateProvince string `toml:"state_province"`
	PostalCode    string `toml:"postal_code"`
	Country       string `toml:"country"`
	Phone         string `toml:"phone"`
	Email         string `toml:"email"`
}

// DNSConfig holds propagation check settings
type DNSConfig struct {
	Wait            bool   `toml:"wait"`
	Resolver        string `toml:"resolver"`
	IntervalSeconds int    `toml:"interval_seconds"`
	Attempts        int    `toml:"attempts"`
}

// HistoryConfig holds run history storage settings
type HistoryConfig struct {
	Type        string `toml:"type"` // "sqlite", "postgres" or "none"
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// NotifyConfig holds completion e-mail settings
type NotifyConfig struct {
	From                 string `toml:"from"`
	PostmarkServerToken  string `toml:"postmark_server_token"`
	PostmarkAccountToken string `toml:"postmark_account_token"`
}

// S3Config holds credentials for s3:// archive sources
type S3Config struct {
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	ForcePathStyle  bool   `toml:"force_path_style"`
}

// envOverrides are secrets and paths that may come from the environment
type envOverrides struct {
	NamecheapAPIUser     string `env:"SITELAUNCH_NAMECHEAP_API_USER"`
	NamecheapAPIKey      string `env:"SITELAUNCH_NAMECHEAP_API_KEY"`
	NamecheapUsername    string `env:"SITELAUNCH_NAMECHEAP_USERNAME"`
	NamecheapClientIP    string `env:"SITELAUNCH_NAMECHEAP_CLIENT_IP"`
	DynadotAPIKey        string `env:"SITELAUNCH_DYNADOT_API_KEY"`
	PostmarkServerToken  string `env:"SITELAUNCH_POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"SITELAUNCH_POSTMARK_ACCOUNT_TOKEN"`
	DatabaseURL          string `env:"SITELAUNCH_DATABASE_URL"`
	S3AccessKeyID        string `env:"SITELAUNCH_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey    string `env:"SITELAUNCH_S3_SECRET_ACCESS_KEY"`
	LogLevel             string `env:"SITELAUNCH_LOG_LEVEL"`
}

// Default returns a configuration with every default applied and no file loaded
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.flat = cfg.defaultFlat()
	return cfg
}

// Load reads the configuration from path, or from the first of SearchPaths
// when path is empty. A missing file is not an error when path is empty: the
// defaults are returned and Path() reports "".
func Load(path string) (*Config, error) {
	if path == "" {
		for _, candidate := range SearchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	cfg := &Config{}
	raw := map[string]any{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
		cfg.path = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	cfg.flat = cfg.defaultFlat()
	for k, v := range Flatten(raw) {
		cfg.flat[k] = v
	}
	cfg.syncFlat()

	return cfg, nil
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// Lookup returns a value from the flat "<section>_<key>" namespace
func (c *Config) Lookup(key string) (string, bool) {
	v, ok := c.flat[key]
	return v, ok
}

// Keys returns the sorted flat namespace keys
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.flat))
	for k := range c.flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSecretKey reports whether a flat key holds a credential
func IsSecretKey(key string) bool {
	for _, marker := range []string{"api_key", "password", "token", "secret", "postgres_url"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// Secrets returns every non-empty credential value so it can be masked in logs
func (c *Config) Secrets() []string {
	var out []string
	for _, k := range c.Keys() {
		if IsSecretKey(k) && c.flat[k] != "" {
			out = append(out, c.flat[k])
		}
	}
	return out
}

func (c *Config) applyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.Namecheap.APIUser, o.NamecheapAPIUser)
	override(&c.Namecheap.APIKey, o.NamecheapAPIKey)
	override(&c.Namecheap.Username, o.NamecheapUsername)
	override(&c.Namecheap.ClientIP, o.NamecheapClientIP)
	override(&c.Dynadot.APIKey, o.DynadotAPIKey)
	override(&c.Notify.PostmarkServerToken, o.PostmarkServerToken)
	override(&c.Notify.PostmarkAccountToken, o.PostmarkAccountToken)
	override(&c.History.PostgresURL, o.DatabaseURL)
	override(&c.S3.AccessKeyID, o.S3AccessKeyID)
	override(&c.S3.SecretAccessKey, o.S3SecretAccessKey)
	override(&c.Logging.Level, o.LogLevel)
	return nil
}

func (c *Config) applyDefaults() {
	setDefault := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	setDefaultInt := func(dst *int, v int) {
		if *dst <= 0 {
			*dst = v
		}
	}

	setDefault(&c.Defaults.Registrar, "namecheap")
	setDefault(&c.Defaults.Panel, "cyberpanel")
	setDefault(&c.Defaults.WorkDir, "/var/lib/sitelaunch")
	setDefault(&c.Defaults.RecordsDir, filepath.Join(c.Defaults.WorkDir, "credentials"))
	setDefault(&c.Defaults.LogDir, filepath.Join(c.Defaults.WorkDir, "logs"))

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "text")

	setDefaultInt(&c.Transport.TimeoutSeconds, 60)
	setDefaultInt(&c.Transport.RequestsPerMinute, 20)
	setDefaultInt(&c.Transport.DownloadTimeoutSeconds, 1800)

	if c.Namecheap.Sandbox {
		setDefault(&c.Namecheap.Endpoint, "https://api.sandbox.namecheap.com/xml.response")
	}
	setDefault(&c.Namecheap.Endpoint, "https://api.namecheap.com/xml.response")
	setDefaultInt(&c.Namecheap.Years, 1)

	setDefault(&c.Dynadot.Endpoint, "https://api.dynadot.com/api3.json")
	if len(c.Dynadot.Nameservers) == 0 {
		c.Dynadot.Nameservers = []string{"ns1.dyna-ns.net", "ns2.dyna-ns.net"}
	}
	setDefaultInt(&c.Dynadot.Years, 1)

	setDefault(&c.CyberPanel.Binary, "cyberpanel")
	setDefault(&c.CyberPanel.Package, "Default")
	setDefault(&c.CyberPanel.Owner, "admin")
	setDefault(&c.CyberPanel.PHPDir, "/usr/local/lsws")
	setDefault(&c.CyberPanel.WebRootBase, "/home")

	setDefault(&c.DNS.Resolver, "8.8.8.8:53")
	setDefaultInt(&c.DNS.IntervalSeconds, 30)
	setDefaultInt(&c.DNS.Attempts, 20)

	setDefault(&c.History.Type, "sqlite")
	setDefault(&c.History.SQLitePath, filepath.Join(c.Defaults.WorkDir, "history.db"))

	if c.Sources == nil {
		c.Sources = map[string]string{}
	}
}

// defaultFlat exposes the typed values (defaults included) in the flat namespace
func (c *Config) defaultFlat() map[string]string {
	return map[string]string{
		"defaults_registrar":            c.Defaults.Registrar,
		"defaults_panel":                c.Defaults.Panel,
		"defaults_notify_email":         c.Defaults.NotifyEmail,
		"defaults_server_ip":            c.Defaults.ServerIP,
		"defaults_work_dir":             c.Defaults.WorkDir,
		"defaults_records_dir":          c.Defaults.RecordsDir,
		"defaults_log_dir":              c.Defaults.LogDir,
		"logging_level":                 c.Logging.Level,
		"logging_format":                c.Logging.Format,
		"namecheap_endpoint":            c.Namecheap.Endpoint,
		"dynadot_endpoint":              c.Dynadot.Endpoint,
		"cyberpanel_binary":             c.CyberPanel.Binary,
		"cyberpanel_package":            c.CyberPanel.Package,
		"cyberpanel_owner":              c.CyberPanel.Owner,
		"cyberpanel_web_root_base":      c.CyberPanel.WebRootBase,
		"dns_resolver":                  c.DNS.Resolver,
		"history_type":                  c.History.Type,
		"history_sqlite_path":           c.History.SQLitePath,
		"namecheap_api_key":             c.Namecheap.APIKey,
		"dynadot_api_key":               c.Dynadot.APIKey,
		"notify_postmark_server_token":  c.Notify.PostmarkServerToken,
		"notify_postmark_account_token": c.Notify.PostmarkAccountToken,
		"history_postgres_url":          c.History.PostgresURL,
		"s3_secret_access_key":          c.S3.SecretAccessKey,
	}
}

// syncFlat writes environment overrides back into the flat namespace
func (c *Config) syncFlat() {
	set := func(key, v string) {
		if v != "" {
			c.flat[key] = v
		}
	}
	set("namecheap_api_user", c.Namecheap.APIUser)
	set("namecheap_api_key", c.Namecheap.APIKey)
	set("namecheap_username", c.Namecheap.Username)
	set("namecheap_client_ip", c.Namecheap.ClientIP)
	set("dynadot_api_key", c.Dynadot.APIKey)
	set("notify_postmark_server_token", c.Notify.PostmarkServerToken)
	set("notify_postmark_account_token", c.Notify.PostmarkAccountToken)
	set("history_postgres_url", c.History.PostgresURL)
	set("s3_access_key_id", c.S3.AccessKeyID)
	set("s3_secret_access_key", c.S3.SecretAccessKey)
	set("logging_level", c.Logging.Level)
}

// Flatten turns decoded TOML tables into "<section>_<key>" pairs. Nested
// tables extend the prefix; arrays are joined with commas.
func Flatten(raw map[string]any) map[string]string {
	out := make(map[string]string)
	flattenInto(out, "", raw)
	return out
}

func flattenInto(out map[string]string, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch val := v.(type) {
		case map[string]any:
			flattenInto(out, key, val)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
