package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

// fileConfig is the on-disk shape loaded from a TOML config file, mirroring
// geth's own "one struct, dumpconfig round-trips it" convention.
type fileConfig struct {
	BuilderID       string
	EntryPoint      common.Address
	ChainID         uint64
	Beneficiary     common.Address
	RPCEndpoint     string
	OpPoolURL       string
	LogFile         string
	LogFileMaxSizeMB int

	ReplacementFeePercentIncrease uint64
	MaxFeeIncreases               uint64

	MaxVerificationGas      uint64
	MaxCallGas              uint64
	MaxSimulateHandleOpsGas uint64
	ProposerGasLimit        uint64
}

func defaultConfig() fileConfig {
	return fileConfig{
		BuilderID:                     "default",
		ChainID:                       1,
		ReplacementFeePercentIncrease: 10,
		MaxFeeIncreases:               10,
		MaxVerificationGas:            1_500_000,
		MaxCallGas:                    10_000_000,
		MaxSimulateHandleOpsGas:       20_000_000,
		ProposerGasLimit:              15_000_000,
		LogFileMaxSizeMB:              100,
	}
}

// loadConfig reads path (if the --config flag was set) over the defaults,
// the same "defaults then TOML overrides" pattern geth's loadConfig uses.
func loadConfig(ctx *cli.Context) (fileConfig, error) {
	cfg := defaultConfig()

	if path := ctx.String(configFileFlag.Name); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()

		if _, err := toml.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyFlags(ctx, &cfg)
	return cfg, nil
}

// applyFlags lets individual CLI flags override whatever the config file
// set, so operators can tweak one setting without editing the file.
func applyFlags(ctx *cli.Context, cfg *fileConfig) {
	if ctx.IsSet(builderIDFlag.Name) {
		cfg.BuilderID = ctx.String(builderIDFlag.Name)
	}
	if ctx.IsSet(rpcEndpointFlag.Name) {
		cfg.RPCEndpoint = ctx.String(rpcEndpointFlag.Name)
	}
	if ctx.IsSet(entryPointFlag.Name) {
		cfg.EntryPoint = common.HexToAddress(ctx.String(entryPointFlag.Name))
	}
	if ctx.IsSet(opPoolURLFlag.Name) {
		cfg.OpPoolURL = ctx.String(opPoolURLFlag.Name)
	}
	if ctx.IsSet(logFileFlag.Name) {
		cfg.LogFile = ctx.String(logFileFlag.Name)
	}
}
