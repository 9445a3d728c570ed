// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Feeds      FeedsConfig      `yaml:"feeds" mapstructure:"feeds"`
	Scan       ScanConfig       `yaml:"scan" mapstructure:"scan"`
	Watchlist  WatchlistConfig  `yaml:"watchlist" mapstructure:"watchlist"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Tracker    TrackerConfig    `yaml:"tracker" mapstructure:"tracker"`
	Slack      SlackConfig      `yaml:"slack" mapstructure:"slack"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// FeedsConfig holds the source URLs of the five upstream feeds.
type FeedsConfig struct {
	CVEListURL   string `yaml:"cvelist_url" mapstructure:"cvelist_url"`
	KEVURL       string `yaml:"kev_url" mapstructure:"kev_url"`
	EPSSURL      string `yaml:"epss_url" mapstructure:"epss_url"`
	PatchThisURL string `yaml:"patchthis_url" mapstructure:"patchthis_url"`
	NVDURLFormat string `yaml:"nvd_url_format" mapstructure:"nvd_url_format"`
	TempDir      string `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScanConfig bounds which identifiers the merger constructs records for and
// tunes change detection.
type ScanConfig struct {
	MinYear       int     `yaml:"min_year" mapstructure:"min_year"`
	MaxYear       int     `yaml:"max_year" mapstructure:"max_year"`
	EPSSThreshold float64 `yaml:"epss_threshold" mapstructure:"epss_threshold"`
}

// WatchlistConfig locates the vendor/product watchlist file.
type WatchlistConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// NotifyConfig tunes the notification dispatcher.
type NotifyConfig struct {
	CooldownHours   int  `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
	MaxIssuesPerRun int  `yaml:"max_issues_per_run" mapstructure:"max_issues_per_run"`
	IncludeWarnings bool `yaml:"include_warnings" mapstructure:"include_warnings"`
	Concurrency     int  `yaml:"concurrency" mapstructure:"concurrency"`
}

// Cooldown returns the escalation cooldown window as a duration.
func (n NotifyConfig) Cooldown() time.Duration {
	return time.Duration(n.CooldownHours) * time.Hour
}

// TrackerConfig holds the GitHub issue tracker target.
type TrackerConfig struct {
	Repo  string `yaml:"repo" mapstructure:"repo"`
	Token string `yaml:"token" mapstructure:"token"`
}

// SlackConfig holds the optional end-of-run summary webhook.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// MonitoringConfig holds the data-quality alert webhook and thresholds.
type MonitoringConfig struct {
	WebhookURL       string `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinMergedRecords int    `yaml:"min_merged_records" mapstructure:"min_merged_records"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OutputConfig locates the emitted dataset and report files.
type OutputConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	DataFile   string `yaml:"data_file" mapstructure:"data_file"`
	ReportFile string `yaml:"report_file" mapstructure:"report_file"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("feeds.cvelist_url", "https://github.com/CVEProject/cvelistV5/releases/latest/download/cvelistV5.zip")
	v.SetDefault("feeds.kev_url", "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json")
	v.SetDefault("feeds.epss_url", "https://epss.cyentia.com/epss_scores-current.csv.gz")
	v.SetDefault("feeds.patchthis_url", "https://patchthis.app/data/patchthis.csv")
	v.SetDefault("feeds.nvd_url_format", "https://nvd.nist.gov/feeds/json/cve/1.1/nvdcve-1.1-%d.json.gz")
	v.SetDefault("feeds.temp_dir", "/tmp/vulnradar")
	v.SetDefault("feeds.timeout_secs", 120)
	v.SetDefault("scan.min_year", 2020)
	v.SetDefault("scan.max_year", time.Now().UTC().Year())
	v.SetDefault("scan.epss_threshold", 0.10)
	v.SetDefault("watchlist.path", "watchlist.yaml")
	v.SetDefault("notify.cooldown_hours", 24)
	v.SetDefault("notify.max_issues_per_run", 25)
	v.SetDefault("notify.include_warnings", false)
	v.SetDefault("notify.concurrency", 4)
	v.SetDefault("monitoring.min_merged_records", 1)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "radar.db")
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.data_file", "radar_data.json")
	v.SetDefault("output.report_file", "radar_report.md")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Scan.MinYear > cfg.Scan.MaxYear {
		return nil, eris.Errorf("config: scan.min_year %d exceeds scan.max_year %d", cfg.Scan.MinYear, cfg.Scan.MaxYear)
	}
	if cfg.Scan.EPSSThreshold <= 0 || cfg.Scan.EPSSThreshold > 1 {
		return nil, eris.Errorf("config: scan.epss_threshold %v out of range (0,1]", cfg.Scan.EPSSThreshold)
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
