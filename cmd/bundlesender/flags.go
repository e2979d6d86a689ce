package main

import "github.com/urfave/cli/v2"

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	builderIDFlag = &cli.StringFlag{
		Name:  "builder.id",
		Usage: "identifier for this builder, used in logs and metrics",
	}
	rpcEndpointFlag = &cli.StringFlag{
		Name:  "rpc.endpoint",
		Usage: "JSON-RPC endpoint of the execution client used to submit and track transactions",
	}
	entryPointFlag = &cli.StringFlag{
		Name:  "entrypoint.address",
		Usage: "address of the deployed handleOps-compatible entry point contract",
	}
	opPoolURLFlag = &cli.StringFlag{
		Name:  "pool.url",
		Usage: "base URL of the remote operation pool service",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "path to a rotating log file; logs to stderr when unset",
	}
	manualFlag = &cli.BoolFlag{
		Name:  "manual",
		Usage: "start in manual bundling mode instead of automatic per-block submission",
	}
	privateKeyFlag = &cli.StringFlag{
		Name:     "signer.key",
		Usage:    "hex-encoded private key used to sign bundle transactions",
		Required: true,
	}
)

var appFlags = []cli.Flag{
	configFileFlag,
	builderIDFlag,
	rpcEndpointFlag,
	entryPointFlag,
	opPoolURLFlag,
	logFileFlag,
	manualFlag,
	privateKeyFlag,
}
