// Package config loads configuration from environment variables and
// persists the connection profile.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OllieHu/webdav-markdown-manager/internal/paths"
)

// Config holds all client configuration. Precedence is CLI flags over
// environment over saved profile; Load reads only the environment and
// the caller merges the rest.
type Config struct {
	// Connection
	ServerURL string
	Username  string
	Password  string
	BasePath  string
	UseHTTPS  bool

	// Local mirror
	LocalSyncPath string
	AutoSync      bool
	SyncOnSave    bool
	SyncInterval  time.Duration

	// Document cache
	CacheDir     string
	CacheMaxSize int64

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics (sync daemon only)
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		ServerURL:     envOr("MDMAN_SERVER_URL", ""),
		Username:      envOr("MDMAN_USERNAME", ""),
		Password:      envOr("MDMAN_PASSWORD", ""),
		BasePath:      envOr("MDMAN_BASE_PATH", "/"),
		UseHTTPS:      envBool("MDMAN_USE_HTTPS", true),
		LocalSyncPath: envOr("MDMAN_LOCAL_SYNC_PATH", "${documents}/${repoName}"),
		AutoSync:      envBool("MDMAN_AUTO_SYNC", false),
		SyncOnSave:    envBool("MDMAN_SYNC_ON_SAVE", false),
		SyncInterval:  envDuration("MDMAN_SYNC_INTERVAL", 5*time.Minute),
		CacheDir:      envOr("MDMAN_CACHE_DIR", defaultCacheDir()),
		CacheMaxSize:  envInt64("MDMAN_CACHE_MAX_SIZE", 64*1024*1024), // 64MB default
		LogLevel:      envOr("MDMAN_LOG_LEVEL", "info"),
		LogFormat:     envOr("MDMAN_LOG_FORMAT", "console"),
		MetricsAddr:   envOr("MDMAN_METRICS_ADDR", ":9090"),
	}
}

// Validate checks the fields a connection requires. Called after the
// caller has merged flags and profile values in.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is required (flag -server, MDMAN_SERVER_URL, or a saved profile)")
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base path must be absolute, got %q", c.BasePath)
	}
	return nil
}

// ResolvedServerURL returns the server URL with a scheme. A bare
// host gets https:// or http:// per UseHTTPS; an explicit scheme in
// the configured value wins over the flag.
func (c *Config) ResolvedServerURL() string {
	if c.ServerURL == "" ||
		strings.HasPrefix(c.ServerURL, "http://") ||
		strings.HasPrefix(c.ServerURL, "https://") {
		return c.ServerURL
	}
	if c.UseHTTPS {
		return "https://" + c.ServerURL
	}
	return "http://" + c.ServerURL
}

// ExpandLocalSyncPath substitutes the supported variables in the
// configured local sync path: ${workspaceRoot}, ${userHome},
// ${documents} and ${repoName}.
func ExpandLocalSyncPath(p, workspaceRoot, repoName string) string {
	home, _ := os.UserHomeDir()
	r := strings.NewReplacer(
		"${workspaceRoot}", workspaceRoot,
		"${userHome}", home,
		"${documents}", paths.DocumentsRoot(),
		"${repoName}", repoName,
	)
	return filepath.Clean(r.Replace(p))
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mdman-cache")
	}
	return filepath.Join(dir, "mdman")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
