package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tokenmart/config"
	"tokenmart/core"
	"tokenmart/native/market"
	"tokenmart/observability/logging"
	"tokenmart/rpc"
	"tokenmart/storage"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TOKENMART_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup("marketd", env, logging.ParseLevel(cfg.LogLevel))

	deployer, err := cfg.DeployerAddress()
	if err != nil {
		logger.Error("Invalid deployer address", slog.Any("error", err))
		os.Exit(1)
	}
	admins, err := cfg.AdminAddresses()
	if err != nil {
		logger.Error("Invalid admin address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node := core.NewNode(db, marketplaceAddress(deployer), cfg.AccessPolicy, logger)

	install := market.InstallConfig{Deployer: deployer, Admins: admins}
	if cfg.Fee >= 0 {
		install.Fee = big.NewInt(cfg.Fee)
	}
	purse, err := node.Install(install)
	if err != nil {
		logger.Error("Failed to install marketplace", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("marketplace ready",
		slog.String("purse", fmt.Sprintf("0x%x", purse)),
		slog.String("policy", cfg.AccessPolicy))

	apiServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           rpc.NewServer(node, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("api listening", slog.String("address", cfg.ListenAddress))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("metrics listening", slog.String("address", cfg.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", slog.Any("error", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("api shutdown", slog.Any("error", err))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("metrics shutdown", slog.Any("error", err))
	}
}

// marketplaceAddress derives the registry identity this deployment uses as
// escrow custodian and approved spender.
func marketplaceAddress(deployer [20]byte) [20]byte {
	hash := ethcrypto.Keccak256([]byte("marketd/self"), deployer[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}
