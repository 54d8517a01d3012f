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

package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/txpool"
	"github.com/opensyria/go-lira/p2p"
)

// Config collects the settings of a node. All fields have working
// defaults; a TOML file and command line flags override them.
type Config struct {
	// DataDir is the root of the chain database. Empty runs the node on
	// an in-memory store.
	DataDir string `toml:"datadir"`

	// DatabaseCache is the leveldb cache budget in megabytes.
	DatabaseCache int `toml:"db-cache"`

	// DatabaseHandles is the leveldb open file budget.
	DatabaseHandles int `toml:"db-handles"`

	// Mine starts the proof-of-work worker on boot.
	Mine bool `toml:"mine"`

	// Coinbase receives mining rewards, hex encoded.
	Coinbase string `toml:"coinbase"`

	// P2P holds the fabric settings.
	P2P p2p.Config `toml:"p2p"`

	// TxPool holds the mempool bounds.
	TxPool txpool.Config `toml:"txpool"`
}

// DefaultConfig holds the standalone defaults.
var DefaultConfig = Config{
	DatabaseCache:   128,
	DatabaseHandles: 512,
	P2P:             p2p.DefaultConfig,
	TxPool:          txpool.DefaultConfig,
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig
	if path == "" {
		return config, nil
	}
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

// CoinbaseAddress decodes the configured coinbase.
func (c *Config) CoinbaseAddress() common.Address {
	return common.HexToAddress(c.Coinbase)
}

// chainDir returns the database directory, creating it when needed.
func (c *Config) chainDir() (string, error) {
	if c.DataDir == "" {
		return "", nil
	}
	dir := filepath.Join(c.DataDir, "chaindata")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
