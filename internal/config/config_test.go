package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Parse([]byte("server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverSQLite || cfg.Database.Path != "equity-ledger.db" {
		t.Errorf("Database = %+v, want sqlite defaults", cfg.Database)
	}
	if cfg.Matcher.Mode != MatcherText || cfg.Matcher.ProximityDays != 90 || cfg.Matcher.BatchSize != 40 {
		t.Errorf("Matcher = %+v", cfg.Matcher)
	}
	if cfg.Server.RateLimit.Capacity != 100 || cfg.Log.Level != "info" {
		t.Errorf("defaults not applied: %+v %+v", cfg.Server.RateLimit, cfg.Log)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "unknown driver", yaml: "database:\n  driver: oracle\n", want: "unknown driver"},
		{name: "mysql without host", yaml: "database:\n  driver: mysql\n", want: "host and name"},
		{name: "unknown matcher", yaml: "matcher:\n  mode: magic\n", want: "unknown mode"},
		{name: "ai without key", yaml: "matcher:\n  mode: ai\nopenai:\n  enabled: true\n", want: "api key"},
		{name: "minio without creds", yaml: "minio:\n  enabled: true\n", want: "minio"},
		{name: "bad yaml", yaml: "server: [", want: "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestParse_OpenAIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Parse([]byte("matcher:\n  mode: ai\nopenai:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("OpenAI.APIKey = %q, want from env", cfg.OpenAI.APIKey)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("Database.Driver = %s, want memory", cfg.Database.Driver)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil, want error")
	}
}

func TestDSNs(t *testing.T) {
	var c Config
	c.Database.User = "ledger"
	c.Database.Password = "p@ss"
	c.Database.Host = "db"
	c.Database.Name = "equity"
	c.Database.SSLMode = "require"

	if got, want := c.MySQLDSN(), "ledger:p@ss@tcp(db:3306)/equity?parseTime=true&charset=utf8mb4&loc=UTC&multiStatements=true"; got != want {
		t.Errorf("MySQLDSN() = %s, want %s", got, want)
	}
	if got, want := c.PostgresDSN(), "postgres://ledger:p%40ss@db:5432/equity?sslmode=require"; got != want {
		t.Errorf("PostgresDSN() = %s, want %s", got, want)
	}
}
