package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"cipherchat/internal/assist"
	"cipherchat/internal/config"
	"cipherchat/internal/directory"
	"cipherchat/internal/service/app"
	"cipherchat/internal/utils/log"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	userID := flag.String("user", "user-0", "local identity to connect as")
	relayURL := flag.String("relay", "", "relay websocket URL (overrides config)")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		log.Fatal("loading config failed", zap.Error(err))
	}
	if *relayURL != "" {
		cfg.RelayURL = *relayURL
	}

	static, err := directory.NewStatic(cfg.Directory.Seed, cfg.Directory.StaticUsers())
	if err != nil {
		log.Fatal("building directory failed", zap.Error(err))
	}

	// With a keys endpoint configured, counterpart public keys come from
	// the relay's directory; the private key always stays local.
	var dir directory.Provisioner = static
	if cfg.KeysURL != "" {
		dir = directory.Split{
			Local:  static,
			Remote: directory.NewHTTPClient(cfg.KeysURL),
		}
	}

	var transformer assist.Transformer
	if cfg.AssistURL != "" {
		transformer = assist.NewHTTPClient(cfg.AssistURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.NewApp(dir, cfg.RelayURL, transformer)
	if err := a.Run(ctx, *userID); err != nil {
		log.Fatal("client stopped", zap.Error(err))
	}
}
