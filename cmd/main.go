package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"ledgerlottery/internal/config"
	"ledgerlottery/internal/entropy"
	"ledgerlottery/internal/events"
	"ledgerlottery/internal/handlers"
	"ledgerlottery/internal/ledger"
	"ledgerlottery/internal/metrics"
	"ledgerlottery/internal/services"
)

func main() {
	app := cli.NewApp()
	app.Name = "lotteryd"
	app.Usage = "ticket lottery settled against an escrow ledger"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "path to the TOML configuration file",
		},
		cli.StringFlag{
			Name:  "listen",
			Usage: "HTTP listen address, overrides the config file",
		},
		cli.StringFlag{
			Name:  "db",
			Usage: "bolt database path, overrides the config file",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "also log to stdout",
		},
	}
	app.Action = serve
	if err := app.Run(os.Args); err != nil {
		logger.Fatalf("lotteryd: %v", err)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if v := c.String("listen"); v != "" {
		cfg.Listen = v
	}
	if v := c.String("db"); v != "" {
		cfg.Store.Driver = config.DriverBolt
		cfg.Store.Path = v
	}
	if c.Bool("verbose") {
		cfg.Verbose = true
	}
	return cfg, cfg.Validate()
}

func openStore(cfg config.StoreConfig) (ledger.Store, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warningf("using in-memory store, state is lost on exit")
		return ledger.NewMemoryStore(), nil
	}
	return ledger.OpenBoltStore(cfg.Path)
}

func openEntropy(ctx context.Context, cfg config.EntropyConfig) (entropy.Source, error) {
	if cfg.Source == config.EntropyChain {
		return entropy.DialChainSource(ctx, cfg.RPCURL, cfg.RequestTimeout, cfg.MaxRetries)
	}
	logger.Warningf("using local random entropy; draws are not externally verifiable")
	return entropy.Random{}, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Init("lotteryd", cfg.Verbose, false, io.Discard).Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Open the ledger store
	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	// 2. Connect the entropy source
	src, err := openEntropy(ctx, cfg.Entropy)
	if err != nil {
		return err
	}

	// 3. Wire the audit event sinks
	recorder := events.NewRecorder(cfg.EventBuffer)
	sinks := events.Multi{events.LogSink{}, recorder}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}

	// 4. Initialize the Lottery Service
	platform, err := cfg.Platform()
	if err != nil {
		return err
	}
	minters, err := cfg.Minters()
	if err != nil {
		return err
	}
	if len(minters) == 0 {
		logger.Warningf("no minters configured, wallets cannot be funded over HTTP")
	}
	m := metrics.New()
	lotteryService, err := services.NewLotteryService(store, src,
		services.Config{FeeBps: cfg.Lottery.FeeBps, Platform: platform, Minters: minters},
		services.WithSink(sinks), services.WithMetrics(m))
	if err != nil {
		return err
	}

	// 5. Set up the Gin router
	r := gin.Default()
	handlers.NewHTTPHandler(lotteryService, recorder, m).RegisterRoutes(r)

	// 6. Run the server until interrupted
	srv := &http.Server{Addr: cfg.Listen, Handler: r}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s", cfg.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
