package main

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envConfig overlays operational toggles on top of the flags.
// Unset pointer fields keep the flag or deployment default.
type envConfig struct {
	EnableAdminHTTP *bool  `env:"NETACTION_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool   `env:"NETACTION_ENABLE_PPROF_HTTP"`
	DataDir         string `env:"NETACTION_DATA_DIR"`
	DisableDB       *bool  `env:"NETACTION_DISABLE_DB"`
	IndexBackend    string `env:"NETACTION_INDEX_BACKEND" envDefault:"sqlite"`
	DeployEnv       string `env:"DEPLOY_ENV"`
}

func parseEnv() (envConfig, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.IndexBackend = strings.ToLower(strings.TrimSpace(cfg.IndexBackend))
	cfg.DeployEnv = strings.ToLower(strings.TrimSpace(cfg.DeployEnv))
	return cfg, nil
}

func (c envConfig) adminHTTP() bool {
	if c.EnableAdminHTTP != nil {
		return *c.EnableAdminHTTP
	}
	return defaultEnableAdminHTTP(c.DeployEnv)
}

func defaultEnableAdminHTTP(deployEnv string) bool {
	switch deployEnv {
	case "staging", "prod", "production":
		return false
	default:
		return true
	}
}
