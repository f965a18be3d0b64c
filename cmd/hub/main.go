package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clutchride/hub/config"
	"github.com/clutchride/hub/hub"
	"github.com/clutchride/hub/internal/logging"
	"github.com/clutchride/hub/nodeclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "hub",
		Usage: "the ClutchRide API hub, serving GraphQL backed by a Clutch node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "The environment whose config/<env>.toml file is loaded.",
				Value:   "development",
				EnvVars: []string{"APP_ENV"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Overrides the configured log level. One of [debug,info,warn,error].",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.Load(ctx.String("env"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if lvl := ctx.String("log-level"); lvl != "" {
				cfg.LogLevel = lvl
			}

			logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck
			if cfg.File != "" {
				logger.Sugar().Infow("loaded config", "File", cfg.File)
			}

			nodeOpts := []nodeclient.Option{
				nodeclient.WithLogger(logger),
				nodeclient.WithRequestTimeout(cfg.RequestTimeout),
				nodeclient.WithReconnectBackoff(cfg.ReconnectBackoff),
				nodeclient.WithRegisterer(prometheus.DefaultRegisterer),
			}
			if cfg.ClutchNodeCAFile != "" || cfg.ClutchNodeCertFile != "" {
				tlsCfg, err := nodeclient.LoadTLSConfig(cfg.ClutchNodeCAFile, cfg.ClutchNodeCertFile, cfg.ClutchNodeKeyFile)
				if err != nil {
					return fmt.Errorf("building node TLS config: %w", err)
				}
				httpClient := &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}
				nodeOpts = append(nodeOpts, nodeclient.WithDialer(nodeclient.WebSocketDialer(httpClient)))
			}
			node, err := nodeclient.New(cfg.ClutchNodeWSSURL, nodeOpts...)
			if err != nil {
				return fmt.Errorf("building node client: %w", err)
			}
			node.Start()
			defer node.Close()

			server, err := hub.NewServer(
				node,
				cfg.JWTSecret,
				hub.WithLogger(logger),
				hub.WithListenAddr(cfg.ListenAddr),
				hub.WithMetricsAddr(cfg.ServeMetricAddr),
				hub.WithTokenTTL(time.Duration(cfg.JWTExpirationHours)*time.Hour),
			)
			if err != nil {
				return fmt.Errorf("building server: %w", err)
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(runCtx)
		},
	}
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
