package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ethaychain/config"
	"ethaychain/core"
	"ethaychain/native/identity"
	"ethaychain/observability/logging"
	"ethaychain/rpc"
	"ethaychain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: use an in-memory database instead of LevelDB")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ETHAY_ENV"))
	logger := logging.Setup("ethayd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
		logger.Warn("running with in-memory database; state is not persisted")
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	node, err := core.NewNode(db, cfg, identity.DevVerifier{}, logger)
	if err != nil {
		logger.Error("Failed to initialise node", slog.Any("error", err))
		os.Exit(1)
	}

	addrs := node.Addresses()
	logger.Info("node initialised",
		"network", cfg.NetworkName,
		"chainSelector", cfg.ChainSelector,
		"escrowVault", fmt.Sprintf("%x", addrs.EscrowVault),
		"feeTreasury", fmt.Sprintf("%x", addrs.FeeTreasury),
	)

	server := rpc.NewServer(node, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
