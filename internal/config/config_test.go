package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"yellowsdk/yellow"
)

var configEnv = []string{
	"YELLOW_SERVER", "YELLOW_API_KEY", "YELLOW_API_SECRET", "YELLOW_CALLBACK_URL",
	"HTTP_ADDR", "DB_PATH", "ARCHIVE_DIR", "CORS_ORIGINS",
	"B2_ENDPOINT", "B2_KEY_ID", "B2_APP_KEY", "B2_BUCKET", "B2_PREFIX",
	"RECONCILE_INTERVAL", "MAX_PENDING_PER_IP",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if c.Yellow.Server != yellow.DefaultServer {
		t.Errorf("Server = %q, want %q", c.Yellow.Server, yellow.DefaultServer)
	}
	if c.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", c.HTTPAddr)
	}
	if c.DBPath != "yellow.db" {
		t.Errorf("DBPath = %q", c.DBPath)
	}
	if c.ReconcileInterval != time.Minute {
		t.Errorf("ReconcileInterval = %v", c.ReconcileInterval)
	}
	if c.MaxPendingPerIP != 5 {
		t.Errorf("MaxPendingPerIP = %d", c.MaxPendingPerIP)
	}
	if c.UseB2() {
		t.Error("UseB2 should be false without B2_BUCKET")
	}
	if len(c.CORSOrigins) != 0 {
		t.Errorf("CORSOrigins = %v, want empty", c.CORSOrigins)
	}
}

func TestFromEnv_Values(t *testing.T) {
	clearEnv(t)
	t.Setenv("YELLOW_SERVER", "sandbox.yellowpay.co")
	t.Setenv("YELLOW_API_KEY", " key ")
	t.Setenv("YELLOW_API_SECRET", "secret")
	t.Setenv("YELLOW_CALLBACK_URL", "https://shop.example/api/ipn")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("B2_BUCKET", "ipn")
	t.Setenv("B2_KEY_ID", "id")
	t.Setenv("B2_APP_KEY", "app")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("MAX_PENDING_PER_IP", "2")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if c.Yellow.Server != "https://sandbox.yellowpay.co" {
		t.Errorf("Server = %q", c.Yellow.Server)
	}
	if c.Yellow.APIKey != "key" {
		t.Errorf("APIKey = %q", c.Yellow.APIKey)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(c.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v, want %v", c.CORSOrigins, want)
	}
	if !c.UseB2() {
		t.Error("UseB2 should be true")
	}
	if c.ReconcileInterval != 30*time.Second || c.MaxPendingPerIP != 2 {
		t.Errorf("interval=%v max=%d", c.ReconcileInterval, c.MaxPendingPerIP)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad interval", map[string]string{"RECONCILE_INTERVAL": "soon"}, "RECONCILE_INTERVAL"},
		{"negative interval", map[string]string{"RECONCILE_INTERVAL": "-1s"}, "RECONCILE_INTERVAL"},
		{"bad pending", map[string]string{"MAX_PENDING_PER_IP": "0"}, "MAX_PENDING_PER_IP"},
		{"b2 without keys", map[string]string{"B2_BUCKET": "x"}, "B2_KEY_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	full := Config{
		Yellow:      yellow.Config{APIKey: "k", APISecret: "s"},
		CallbackURL: "https://shop.example/api/ipn",
	}
	if err := full.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	missing := []func(*Config){
		func(c *Config) { c.Yellow.APIKey = "" },
		func(c *Config) { c.Yellow.APISecret = "" },
		func(c *Config) { c.CallbackURL = "" },
	}
	for i, mutate := range missing {
		c := full
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
