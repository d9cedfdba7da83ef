// Command arbengine is the entry point for the cross-venue arbitrage engine. It
// loads configuration, validates it, sets up signal handling, and starts the
// application in the configured mode.
//
// With -encrypt-key it instead encrypts the secret key held in
// ARBENGINE_WALLET_PRIVATE_KEY into a keystore file and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/alanyoungcy/arbengine/internal/app"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptKey := flag.Bool("encrypt-key", false, "encrypt ARBENGINE_WALLET_PRIVATE_KEY into a keystore and exit")
	keyOut := flag.String("key-out", "wallet.json", "keystore output path for -encrypt-key")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *encryptKey {
		if err := writeKeystore(*keyOut); err != nil {
			logger.Error("failed to write keystore", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("keystore written", slog.String("path", *keyOut))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("arbengine starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("arbengine stopped")
}

// writeKeystore reads the secret key and password from the environment (or a
// .env file) and writes the encrypted keystore to path.
func writeKeystore(path string) error {
	_ = godotenv.Load()

	secret := os.Getenv("ARBENGINE_WALLET_PRIVATE_KEY")
	password := os.Getenv("ARBENGINE_WALLET_KEY_PASSWORD")
	if secret == "" || password == "" {
		return errors.New("ARBENGINE_WALLET_PRIVATE_KEY and ARBENGINE_WALLET_KEY_PASSWORD must be set")
	}
	seed, err := crypto.ParseSecret(secret)
	if err != nil {
		return err
	}
	out, err := crypto.EncryptKey(seed, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "wallet %s\n", crypto.PublicKey(seed))
	return nil
}
