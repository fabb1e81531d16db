package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	Sources   SourcesConfig
	DB        DatabaseConfig
	Cache     CacheConfig
	Retention RetentionConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

// SourceConfig is the per-utility polling setup shared by every
// adapter; HydroOne additionally carries its tile roots.
type SourceConfig struct {
	Enabled      bool
	URL          string
	PollInterval time.Duration
}

type SourcesConfig struct {
	BCHydro          SourceConfig
	Enmax            SourceConfig
	QuebecHydro      SourceConfig
	QuebecPolygonURL string
	NBPower          SourceConfig
	FortisBC         SourceConfig
	Niagara          SourceConfig
	ManitobaHydro    SourceConfig
	HydroOne         SourceConfig
	HydroOneRoots    []string
}

type DatabaseConfig struct {
	Path string
}

type CacheConfig struct {
	FilePath        string
	RefreshInterval time.Duration
}

type RetentionConfig struct {
	KeepSnapshots int
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Sources: SourcesConfig{
			BCHydro:          loadSource("BCHYDRO", "https://www.bchydro.com/power-outages/app/outages-map-data.json", 5*time.Minute),
			Enmax:            loadSource("ENMAX", "https://powerservices.enmax.com/api/outage?type=Current", 5*time.Minute),
			QuebecHydro:      loadSource("QUEBECHYDRO", "https://services5.arcgis.com/0akaykIdiPuMhFIy/arcgis/rest/services/bs_infoPannes_prd_vue/FeatureServer/0/query", 5*time.Minute),
			QuebecPolygonURL: getEnv("QUEBECHYDRO_POLYGON_URL", "https://services5.arcgis.com/0akaykIdiPuMhFIy/arcgis/rest/services/bs_infoPannes_prd_vue/FeatureServer/1/query"),
			NBPower:          loadSource("NBPOWER", "https://services1.arcgis.com/nXhKU3TMjpIZsCx0/arcgis/rest/services/PublicOutageFC_Prod/FeatureServer/6/query", 5*time.Minute),
			FortisBC:         loadSource("FORTISBC", "https://outages.fortisbc.com/outages/Home/UpdatePushpin", 5*time.Minute),
			Niagara:          loadSource("NIAGARA", "https://www.npei.ca/sites/npei/files/kml/outage_polygons_public.kml", 10*time.Minute),
			ManitobaHydro:    loadSource("MANITOBA", "https://account.hydro.mb.ca/portal/OuterOutage.aspx/loadLatLongOuterOutage", 5*time.Minute),
			HydroOne:         loadSource("HYDROONE", "https://d8bkcndcv6jca.cloudfront.net", 10*time.Minute),
			HydroOneRoots:    getEnvList("HYDROONE_ROOTS", []string{"0", "1", "2", "3"}),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/outage-aggregator.db"),
		},
		Cache: CacheConfig{
			FilePath:        getEnv("CACHE_FILE_PATH", "./data/outages-cache.json"),
			RefreshInterval: getEnvDuration("CACHE_REFRESH_INTERVAL", 5*time.Minute),
		},
		Retention: RetentionConfig{
			KeepSnapshots: getEnvInt("RETENTION_KEEP_SNAPSHOTS", 50),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if c.Cache.RefreshInterval < 10*time.Second {
		return fmt.Errorf("cache refresh interval must be at least 10 seconds")
	}

	if c.Retention.KeepSnapshots < 1 {
		return fmt.Errorf("retention must keep at least 1 snapshot")
	}

	for name, src := range map[string]SourceConfig{
		"BCHydro":      c.Sources.BCHydro,
		"ENMAX":        c.Sources.Enmax,
		"Hydro-Quebec": c.Sources.QuebecHydro,
		"NB Power":     c.Sources.NBPower,
		"FortisBC":     c.Sources.FortisBC,
		"Niagara":      c.Sources.Niagara,
		"Manitoba":     c.Sources.ManitobaHydro,
		"Hydro One":    c.Sources.HydroOne,
	} {
		if src.Enabled && src.PollInterval < time.Minute {
			return fmt.Errorf("%s poll interval must be at least 1 minute", name)
		}
	}

	return nil
}

func loadSource(prefix, defaultURL string, defaultInterval time.Duration) SourceConfig {
	return SourceConfig{
		Enabled:      getEnvBool(prefix+"_ENABLED", true),
		URL:          getEnv(prefix+"_URL", defaultURL),
		PollInterval: getEnvDuration(prefix+"_POLL_INTERVAL", defaultInterval),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
