// Command bundlesender runs a single builder's bundle sender loop: it pulls
// user operations from an operation pool, packs them into bundles, submits
// them to an entry point contract, and escalates fees until they are mined.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/NethermindEth/bundle-sender/entrypoint"
	"github.com/NethermindEth/bundle-sender/estimation"
	"github.com/NethermindEth/bundle-sender/pool"
	"github.com/NethermindEth/bundle-sender/proposer"
	"github.com/NethermindEth/bundle-sender/sender"
	"github.com/NethermindEth/bundle-sender/tracker"
)

func main() {
	app := &cli.App{
		Name:   "bundlesender",
		Usage:  "ERC-4337 bundle sender loop",
		Flags:  appFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Info)); err != nil {
		log.Warn("failed to set GOMAXPROCS", "err", err)
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	estimationSettings := estimation.Settings{
		MaxVerificationGas:      cfg.MaxVerificationGas,
		MaxCallGas:              cfg.MaxCallGas,
		MaxSimulateHandleOpsGas: cfg.MaxSimulateHandleOpsGas,
	}
	if reason, ok := estimationSettings.Validate(); !ok {
		return fmt.Errorf("invalid gas estimation settings: %s", reason)
	}

	senderSettings := sender.Settings{
		ReplacementFeePercentIncrease: cfg.ReplacementFeePercentIncrease,
		MaxFeeIncreases:               cfg.MaxFeeIncreases,
	}
	if reason, ok := senderSettings.Validate(); !ok {
		return fmt.Errorf("invalid sender settings: %s", reason)
	}

	key, err := crypto.HexToECDSA(ctx.String(privateKeyFlag.Name))
	if err != nil {
		return fmt.Errorf("parsing signer key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	signer := newKeySigner(key, cfg.ChainID)

	rpcClient, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("dialing execution client: %w", err)
	}

	txTracker, err := tracker.Dial(cfg.RPCEndpoint, from, signer)
	if err != nil {
		return fmt.Errorf("starting transaction tracker: %w", err)
	}

	localPool := pool.NewLocalPool(cfg.EntryPoint, cfg.ChainID)
	opPool := newOperationPool(cfg, localPool)

	estimator := noopEstimator{}
	bundleProposer := proposer.New(proposer.Config{
		GasLimit:    cfg.ProposerGasLimit,
		DefaultFees: sender.NewGasFees(0, 0),
	}, localPool, estimator)

	entryPoint := entrypoint.New(cfg.EntryPoint, cfg.ChainID)
	watcher := &rpcBlockWatcher{client: rpcClient}

	loop := sender.New(sender.Config{
		ID:           cfg.BuilderID,
		Beneficiary:  cfg.Beneficiary,
		ChainID:      cfg.ChainID,
		Settings:     senderSettings,
		PollInterval: 2 * time.Second,
	}, watcher, txTracker, bundleProposer, opPool, entryPoint)

	if ctx.Bool(manualFlag.Name) {
		loop.SetManualBundlingMode(true)
	}

	log.Info("starting bundle sender", "builder", cfg.BuilderID, "entry_point", cfg.EntryPoint, "manual", ctx.Bool(manualFlag.Name))
	return loop.Run(ctx.Context)
}

func setupLogging(cfg fileConfig) {
	var handler slog.Handler = log.NewTerminalHandler(os.Stderr, false)
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename: cfg.LogFile,
			MaxSize:  cfg.LogFileMaxSizeMB,
			Compress: true,
		}
		handler = log.JSONHandler(rotator)
	}
	log.SetDefault(log.NewLogger(handler))
}

func newOperationPool(cfg fileConfig, local *pool.LocalPool) sender.OperationPool {
	if cfg.OpPoolURL == "" {
		return local
	}
	remote := pool.NewRemoteClient(cfg.OpPoolURL)
	return remote
}

// noopEstimator is a placeholder estimation.GasEstimator that reports a
// fixed gas figure for every operation. Wiring a real simulator (tracing a
// handleOps call against pending state) is deployment-specific and out of
// scope here.
type noopEstimator struct{}

func (noopEstimator) EstimateOpGas(ctx context.Context, op *sender.UserOperation, overrides estimation.StateOverride) (estimation.GasEstimate, error) {
	return estimation.GasEstimate{
		PreVerificationGas:   21_000,
		VerificationGasLimit: 100_000,
		CallGasLimit:         200_000,
	}, nil
}
