// Copyright 2025 The Private-Blockchain Authors
// This file is part of the Private-Blockchain library.
//
// The Private-Blockchain library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Private-Blockchain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Private-Blockchain library. If not, see <http://www.gnu.org/licenses/>.

// Package node assembles the ledger subsystems into one runnable stack:
// configuration, storage selection, component wiring, the HTTP server and
// the background sweeps.
package node

import (
	"fmt"
	"os"
	"strconv"

	"github.com/naoina/toml"
)

// Defaults applied when neither the environment nor a config file sets an
// option.
const (
	DefaultPort      = 8080
	DefaultDataRoot  = "data"
	DefaultNetworkID = "camtc-local"
	DefaultAPIPrefix = "/api"
)

// Config is the full node configuration. Environment variables fill it
// first, an optional TOML file overrides, CLI flags override last.
type Config struct {
	DatabaseURL string `toml:",omitempty"`
	DataRoot    string `toml:",omitempty"`
	NetworkID   string `toml:",omitempty"`
	APIPrefix   string `toml:",omitempty"`
	Port        int    `toml:",omitempty"`

	AuditRetentionDays int   `toml:",omitempty"` // 0 disables pruning
	AuditLogMaxBytes   int64 `toml:",omitempty"` // 0 disables rotation

	WalletNonceTTLSeconds int `toml:",omitempty"` // 0 selects the 300s default

	DemoExternalSignerAddress string `toml:",omitempty"`
}

// FromEnv builds a config from the recognized environment variables,
// falling back to defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		DataRoot:                  envOr("DATA_ROOT", DefaultDataRoot),
		NetworkID:                 envOr("NETWORK_ID", DefaultNetworkID),
		APIPrefix:                 envOr("API_PREFIX", DefaultAPIPrefix),
		DemoExternalSignerAddress: os.Getenv("DEMO_EXTERNAL_SIGNER_ADDRESS"),
	}
	var err error
	if cfg.Port, err = envInt("PORT", DefaultPort); err != nil {
		return cfg, err
	}
	if cfg.AuditRetentionDays, err = envInt("AUDIT_RETENTION_DAYS", 0); err != nil {
		return cfg, err
	}
	maxBytes, err := envInt("AUDIT_LOG_MAX_BYTES", 0)
	if err != nil {
		return cfg, err
	}
	cfg.AuditLogMaxBytes = int64(maxBytes)
	if cfg.WalletNonceTTLSeconds, err = envInt("WALLET_NONCE_TTL_SECONDS", 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("node: %s must be an integer, got %q", key, raw)
	}
	return v, nil
}

// LoadConfigFile overlays a TOML file onto the config. Only keys present in
// the file are touched.
func LoadConfigFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("node: opening config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("node: parsing %s: %w", path, err)
	}
	return nil
}
