// Copyright 2025 The go-lira Authors
// This file is part of the go-lira library.
//
// The go-lira library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-lira library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-lira library. If not, see <http://www.gnu.org/licenses/>.

// lirad is the Lira network node daemon.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/opensyria/go-lira/core"
	"github.com/opensyria/go-lira/log"
	"github.com/opensyria/go-lira/node"
	"github.com/opensyria/go-lira/params"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the chain database",
	}
	listenAddrFlag = &cli.StringFlag{
		Name:  "port",
		Usage: "P2P listen address",
	}
	bootnodesFlag = &cli.StringSliceFlag{
		Name:  "bootnodes",
		Usage: "Comma separated list of bootstrap peer addresses",
	}
	maxPeersFlag = &cli.IntFlag{
		Name:  "maxpeers",
		Usage: "Maximum number of network peers",
	}
	noDiscoveryFlag = &cli.BoolFlag{
		Name:  "nodiscover",
		Usage: "Disable the LAN discovery beacon",
	}
	mineFlag = &cli.BoolFlag{
		Name:  "mine",
		Usage: "Enable proof-of-work mining",
	}
	coinbaseFlag = &cli.StringFlag{
		Name:  "coinbase",
		Usage: "Address mining rewards are paid to (hex)",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging level (trace|debug|info|warn|error|crit)",
		Value: "info",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs to a rotating file instead of the terminal",
	}
)

func main() {
	app := &cli.App{
		Name:    "lirad",
		Usage:   "Lira proof-of-work blockchain node",
		Version: params.Version,
		Flags: []cli.Flag{
			configFlag, dataDirFlag, listenAddrFlag, bootnodesFlag,
			maxPeersFlag, noDiscoveryFlag, mineFlag, coinbaseFlag,
			verbosityFlag, logFileFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	setupLogging(ctx)

	config, err := node.LoadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	if ctx.IsSet(dataDirFlag.Name) {
		config.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(listenAddrFlag.Name) {
		config.P2P.ListenAddr = ctx.String(listenAddrFlag.Name)
	}
	if ctx.IsSet(bootnodesFlag.Name) {
		config.P2P.Bootnodes = ctx.StringSlice(bootnodesFlag.Name)
	}
	if ctx.IsSet(maxPeersFlag.Name) {
		config.P2P.MaxPeers = ctx.Int(maxPeersFlag.Name)
	}
	if ctx.IsSet(noDiscoveryFlag.Name) {
		config.P2P.NoDiscovery = ctx.Bool(noDiscoveryFlag.Name)
	}
	if ctx.IsSet(mineFlag.Name) {
		config.Mine = ctx.Bool(mineFlag.Name)
	}
	if ctx.IsSet(coinbaseFlag.Name) {
		config.Coinbase = ctx.String(coinbaseFlag.Name)
	}
	if config.Mine && config.Coinbase == "" {
		return fmt.Errorf("mining requires --coinbase")
	}

	log.Info("Starting lirad", "version", params.Version)
	n, err := node.New(config, core.DefaultGenesis())
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return err
	}
	defer n.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down")
	return nil
}

// setupLogging configures the root logger from the flags: colored
// terminal output by default, a rotating file when requested.
func setupLogging(ctx *cli.Context) {
	level := log.LevelFromString(ctx.String(verbosityFlag.Name))
	if path := ctx.String(logFileFlag.Name); path != "" {
		writer := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
		}
		log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(writer, level, false)))
		return
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, true)))
}
