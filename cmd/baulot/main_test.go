package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baulot.yml")
	yml := "database:\n  path: " + filepath.Join(dir, "file.db") + "\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BAULOT_JWT_SECRET", "from-env")
	t.Setenv("BAULOT_S3_ACCESS_KEY", "AKIA")
	t.Setenv("BAULOT_DB", filepath.Join(dir, "env.db"))
	viper.Reset()
	initConfig()
	viper.Set("config", path)
	defer viper.Reset()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" || cfg.Storage.AccessKey != "AKIA" {
		t.Fatalf("secrets not taken from env: %+v", cfg.Auth)
	}
	if cfg.Database.Path != filepath.Join(dir, "env.db") {
		t.Fatalf("db override ignored: %s", cfg.Database.Path)
	}
	if cfg.Log.Level != "debug" || cfg.Server.BasePath != "/v1" {
		t.Fatalf("file values lost: %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baulot.yml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: ftp\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	viper.Reset()
	initConfig()
	viper.Set("config", path)
	defer viper.Reset()

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected validation error")
	}
}
