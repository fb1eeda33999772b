package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"yellowsdk/internal/archive"
	"yellowsdk/yellow"
)

// Config holds the settings of the merchant server.
type Config struct {
	Yellow yellow.Config

	// CallbackURL is the IPN endpoint registered on new invoices. Inbound
	// notifications are verified against this exact string.
	CallbackURL string

	HTTPAddr    string
	DBPath      string
	ArchiveDir  string
	CORSOrigins []string

	B2 archive.B2Config

	ReconcileInterval time.Duration
	MaxPendingPerIP   int
}

// FromEnv reads the server configuration from the environment. Call
// godotenv.Load first to pick up a .env file.
func FromEnv() (Config, error) {
	var c Config
	c.Yellow = yellow.ConfigFromEnv()

	c.CallbackURL = strings.TrimSpace(os.Getenv("YELLOW_CALLBACK_URL"))

	c.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	c.DBPath = strings.TrimSpace(os.Getenv("DB_PATH"))
	if c.DBPath == "" {
		c.DBPath = "yellow.db"
	}
	c.ArchiveDir = strings.TrimSpace(os.Getenv("ARCHIVE_DIR"))
	if c.ArchiveDir == "" {
		c.ArchiveDir = "./ipn-archive"
	}
	c.CORSOrigins = splitList(os.Getenv("CORS_ORIGINS"))

	c.B2 = archive.B2Config{
		Endpoint: strings.TrimSpace(os.Getenv("B2_ENDPOINT")),
		KeyID:    strings.TrimSpace(os.Getenv("B2_KEY_ID")),
		AppKey:   strings.TrimSpace(os.Getenv("B2_APP_KEY")),
		Bucket:   strings.TrimSpace(os.Getenv("B2_BUCKET")),
		Prefix:   strings.TrimSpace(os.Getenv("B2_PREFIX")),
	}

	c.ReconcileInterval = time.Minute
	if raw := strings.TrimSpace(os.Getenv("RECONCILE_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return c, fmt.Errorf("RECONCILE_INTERVAL %q is not a positive duration", raw)
		}
		c.ReconcileInterval = d
	}

	c.MaxPendingPerIP = 5
	if raw := strings.TrimSpace(os.Getenv("MAX_PENDING_PER_IP")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c, fmt.Errorf("MAX_PENDING_PER_IP %q is not a positive integer", raw)
		}
		c.MaxPendingPerIP = n
	}

	if c.B2.Bucket != "" && (c.B2.KeyID == "" || c.B2.AppKey == "") {
		return c, fmt.Errorf("B2_BUCKET is set but B2_KEY_ID or B2_APP_KEY is empty")
	}

	return c, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.Yellow.APIKey == "" {
		return fmt.Errorf("YELLOW_API_KEY is empty")
	}
	if c.Yellow.APISecret == "" {
		return fmt.Errorf("YELLOW_API_SECRET is empty")
	}
	if c.CallbackURL == "" {
		return fmt.Errorf("YELLOW_CALLBACK_URL is empty")
	}
	return nil
}

// UseB2 reports whether notifications are archived to B2 instead of disk.
func (c Config) UseB2() bool {
	return c.B2.Bucket != ""
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
