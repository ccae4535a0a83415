package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Auth.TokenTTL.Std() != 12*time.Hour {
		t.Fatalf("token ttl = %s", cfg.Auth.TokenTTL.Std())
	}
	if cfg.Storage.MaxPhotoSize != 10<<20 {
		t.Fatalf("max photo size = %d", cfg.Storage.MaxPhotoSize)
	}
	if cfg.RateLimit.Login.Rate != 5 || cfg.RateLimit.Login.Every.Std() != time.Minute {
		t.Fatalf("unexpected login limit: %+v", cfg.RateLimit.Login)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: 0.0.0.0:9000
storage:
  driver: s3
  endpoint: minio:9000
  bucket: baulot-photos
log:
  level: debug
`))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("addr = %s", cfg.Server.Addr)
	}
	if cfg.Server.BasePath != "/v1" {
		t.Fatalf("base path default lost: %q", cfg.Server.BasePath)
	}
	if cfg.Storage.Driver != StorageS3 || cfg.Storage.Bucket != "baulot-photos" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Database.Path != "data/baulot.db" {
		t.Fatalf("database default lost: %q", cfg.Database.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"storage driver": "storage:\n  driver: ftp\n",
		"s3 bucket":      "storage:\n  driver: s3\n  endpoint: x\n",
		"base path":      "server:\n  base_path: v1\n",
		"log level":      "log:\n  level: loud\n",
		"limit":          "rate_limit:\n  login:\n    rate: 0\n",
		"calendar id":    "calendar:\n  credentials_file: creds.json\n",
		"duration":       "auth:\n  token_ttl: soon\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Fatalf("expected defaults, got %+v", cfg.Server)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baulot.yml")
	if err := os.WriteFile(path, []byte("database:\n  path: /tmp/x.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Path != "/tmp/x.db" {
		t.Fatalf("path = %s", cfg.Database.Path)
	}
}

func TestSecretsNeverReadFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte("auth:\n  jwt_secret: leaked\nstorage:\n  access_key: leaked\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Auth.JWTSecret != "" || cfg.Storage.AccessKey != "" {
		t.Fatalf("secret fields must be env-only")
	}
	if !strings.Contains(GenerateDefault(), "token_ttl") {
		t.Fatalf("generated default missing auth section")
	}
}
