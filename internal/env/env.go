package env

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/goplus/brewer/internal/publish"
)

// Config is the process-level configuration, read from the environment
// and an optional .env file.
type Config struct {
	Root     string // BREWER_ROOT
	CacheDir string // BREWER_CACHE
	Mirror   MirrorConfig
}

// MirrorConfig selects an S3-compatible bucket receiving a copy of every
// installed artifact. The mirror is off unless an endpoint is set.
type MirrorConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (m MirrorConfig) Enabled() bool {
	return m.Endpoint != ""
}

// S3 converts m into the publisher's mirror configuration. An enabled
// mirror needs both keys.
func (m MirrorConfig) S3() (publish.S3Config, error) {
	if m.AccessKey == "" || m.SecretKey == "" {
		return publish.S3Config{}, errors.New("BREWER_S3_ACCESS_KEY and BREWER_S3_SECRET_KEY are required")
	}
	return publish.S3Config{
		Endpoint:  m.Endpoint,
		Region:    m.Region,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Bucket:    m.Bucket,
		UseSSL:    m.UseSSL,
	}, nil
}

// Load reads the configuration. Variables already present in the
// environment win over those in files; missing files are ignored.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	root := strings.TrimSpace(os.Getenv("BREWER_ROOT"))
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		root = filepath.Join(home, ".brewer")
	}
	cache := strings.TrimSpace(os.Getenv("BREWER_CACHE"))
	if cache == "" {
		var err error
		if cache, err = WorkDir(); err != nil {
			return nil, err
		}
	}
	return &Config{
		Root:     root,
		CacheDir: cache,
		Mirror:   loadMirrorConfig(),
	}, nil
}

func loadMirrorConfig() MirrorConfig {
	return MirrorConfig{
		Endpoint:  strings.TrimSpace(os.Getenv("BREWER_S3_ENDPOINT")),
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("BREWER_S3_REGION")), "us-east-1"),
		AccessKey: strings.TrimSpace(os.Getenv("BREWER_S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("BREWER_S3_SECRET_KEY")),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("BREWER_S3_BUCKET")), "brewer-artifacts"),
		UseSSL:    parseBool(os.Getenv("BREWER_S3_USE_SSL"), true),
	}
}

// WorkDir returns the default cache directory.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, "brewer"), nil
}

func parseBool(raw string, def bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
