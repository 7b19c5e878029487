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

package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "DATA_ROOT", "NETWORK_ID", "API_PREFIX", "PORT",
		"AUDIT_RETENTION_DAYS", "AUDIT_LOG_MAX_BYTES", "WALLET_NONCE_TTL_SECONDS",
		"DEMO_EXTERNAL_SIGNER_ADDRESS",
	} {
		t.Setenv(key, "")
	}
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Empty(t, cfg.DatabaseURL)
	require.Equal(t, DefaultDataRoot, cfg.DataRoot)
	require.Equal(t, DefaultNetworkID, cfg.NetworkID)
	require.Equal(t, DefaultAPIPrefix, cfg.APIPrefix)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Zero(t, cfg.AuditRetentionDays)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATA_ROOT", "/var/lib/medledger")
	t.Setenv("PORT", "9000")
	t.Setenv("AUDIT_RETENTION_DAYS", "30")
	t.Setenv("WALLET_NONCE_TTL_SECONDS", "120")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "/var/lib/medledger", cfg.DataRoot)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, 30, cfg.AuditRetentionDays)
	require.Equal(t, 120, cfg.WalletNonceTTLSeconds)
}

func TestFromEnvRejectsBadInt(t *testing.T) {
	t.Setenv("PORT", "eighty")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
NetworkID = "camtc-staging"
Port = 9090
AuditRetentionDays = 14
`), 0o644))

	cfg := Config{NetworkID: DefaultNetworkID, Port: DefaultPort, DataRoot: DefaultDataRoot}
	require.NoError(t, LoadConfigFile(path, &cfg))
	require.Equal(t, "camtc-staging", cfg.NetworkID)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 14, cfg.AuditRetentionDays)
	// Keys absent from the file are untouched.
	require.Equal(t, DefaultDataRoot, cfg.DataRoot)

	require.Error(t, LoadConfigFile(filepath.Join(t.TempDir(), "missing.toml"), &cfg))
}

func TestNodeAssembly(t *testing.T) {
	n, err := New(Config{
		DataRoot:                  t.TempDir(),
		NetworkID:                 "camtc-test",
		Port:                      0,
		DemoExternalSignerAddress: "0xDemo0000000000000000000000000000000000aB",
	})
	require.NoError(t, err)

	// The directory is seeded and the demo wallet is registered.
	providers, err := n.dir.Providers()
	require.NoError(t, err)
	require.NotEmpty(t, providers)
	count, err := n.registry.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Core components are live before Start: a transaction can be scored
	// and admitted.
	stats := n.pool.Stats(0, 0)
	require.Zero(t, stats.TotalSize)

	require.NoError(t, n.Close())
}
