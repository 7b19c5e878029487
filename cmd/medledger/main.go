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

// medledger runs a healthcare transaction ledger node: tiered mempool,
// context-aware priority scoring, hash-chained audit log and wallet
// challenge/verify authentication behind an HTTP API.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/muuduuu/Private-Blockchain/node"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file overlaying the environment",
	}
	datadirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the file store",
	}
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "PostgreSQL connection string (selects the Postgres backend)",
	}
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "Network identifier",
	}
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "HTTP listening port",
	}
	apiPrefixFlag = &cli.StringFlag{
		Name:  "api.prefix",
		Usage: "Path prefix the HTTP API is mounted under",
	}
	auditRetentionFlag = &cli.IntFlag{
		Name:  "audit.retention",
		Usage: "Days to retain audit entries (0 disables pruning)",
	}
	auditMaxBytesFlag = &cli.Int64Flag{
		Name:  "audit.maxbytes",
		Usage: "Rotate the audit log past this byte budget (0 disables)",
	}
	nonceTTLFlag = &cli.IntFlag{
		Name:  "nonce.ttl",
		Usage: "Wallet challenge TTL in seconds",
	}
	demoWalletFlag = &cli.StringFlag{
		Name:  "demo.wallet",
		Usage: "External-signer address to register at startup",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs to a rotated file in addition to the terminal",
	}
)

func main() {
	app := &cli.App{
		Name:    "medledger",
		Usage:   "healthcare transaction ledger node",
		Version: node.Version,
		Flags: []cli.Flag{
			configFlag, datadirFlag, dbFlag, networkFlag, portFlag,
			apiPrefixFlag, auditRetentionFlag, auditMaxBytesFlag,
			nonceTTLFlag, demoWalletFlag, verbosityFlag, logFileFlag,
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print version and exit",
				Action: func(ctx *cli.Context) error {
					fmt.Println("medledger", node.Version)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	useColor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	var output io.Writer = os.Stderr
	if useColor {
		output = colorable.NewColorableStderr()
	}
	handler := log.StreamHandler(output, log.TerminalFormat(useColor))

	if path := ctx.String(logFileFlag.Name); path != "" {
		fileOut := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
		}
		handler = log.MultiHandler(
			handler,
			log.StreamHandler(fileOut, log.TerminalFormat(false)),
		)
	}

	level := log.Lvl(ctx.Int(verbosityFlag.Name))
	log.Root().SetHandler(log.LvlFilterHandler(level, handler))
	return nil
}

func buildConfig(ctx *cli.Context) (node.Config, error) {
	cfg, err := node.FromEnv()
	if err != nil {
		return cfg, err
	}
	if path := ctx.String(configFlag.Name); path != "" {
		if err := node.LoadConfigFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(datadirFlag.Name) {
		cfg.DataRoot = ctx.String(datadirFlag.Name)
	}
	if ctx.IsSet(dbFlag.Name) {
		cfg.DatabaseURL = ctx.String(dbFlag.Name)
	}
	if ctx.IsSet(networkFlag.Name) {
		cfg.NetworkID = ctx.String(networkFlag.Name)
	}
	if ctx.IsSet(portFlag.Name) {
		cfg.Port = ctx.Int(portFlag.Name)
	}
	if ctx.IsSet(apiPrefixFlag.Name) {
		cfg.APIPrefix = ctx.String(apiPrefixFlag.Name)
	}
	if ctx.IsSet(auditRetentionFlag.Name) {
		cfg.AuditRetentionDays = ctx.Int(auditRetentionFlag.Name)
	}
	if ctx.IsSet(auditMaxBytesFlag.Name) {
		cfg.AuditLogMaxBytes = ctx.Int64(auditMaxBytesFlag.Name)
	}
	if ctx.IsSet(nonceTTLFlag.Name) {
		cfg.WalletNonceTTLSeconds = ctx.Int(nonceTTLFlag.Name)
	}
	if ctx.IsSet(demoWalletFlag.Name) {
		cfg.DemoExternalSignerAddress = ctx.String(demoWalletFlag.Name)
	}
	return cfg, nil
}

func run(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	n.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	errCh := make(chan error, 1)
	go func() { errCh <- n.Wait() }()

	select {
	case sig := <-sigCh:
		log.Info("Shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", "err", err)
			n.Close()
			return err
		}
	}
	return n.Close()
}
