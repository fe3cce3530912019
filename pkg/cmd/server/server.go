package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/BrianLudlam/block-racer/log"
	"github.com/BrianLudlam/block-racer/pkg/api"
	"github.com/BrianLudlam/block-racer/pkg/chain/simchain"
	"github.com/BrianLudlam/block-racer/pkg/config"
	"github.com/BrianLudlam/block-racer/pkg/db/archive"
	"github.com/BrianLudlam/block-racer/pkg/db/postgres"
	"github.com/BrianLudlam/block-racer/pkg/events/natspub"
	"github.com/BrianLudlam/block-racer/pkg/ledger"
	"github.com/BrianLudlam/block-racer/pkg/racing"
	"github.com/BrianLudlam/block-racer/pkg/registry"
	"github.com/BrianLudlam/block-racer/pkg/utils"
	"github.com/BrianLudlam/block-racer/pkg/utils/broadcast"
)

func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the race lifecycle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer()
		},
	}
	cmd.Flags().StringVarP(&config.APIAddr,
		"api-addr",
		"a",
		"localhost:8080",
		"HTTP API listen address")
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.SQLLogLevel,
		"sql-log-level",
		"debug",
		"controls the log level for sql methods")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	cmd.Flags().StringVar(&config.LogFilter,
		"log-filter",
		"",
		"zapfilter rules to limit log output, e.g. 'debug:racing* info:*'")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().StringVar(&config.BlockInterval,
		"block-interval",
		"2s",
		"duration between sealed chain heights")
	cmd.Flags().StringVar(&config.ChainSeed,
		"chain-seed",
		"",
		"hex genesis seed for the chain random-value stream (empty picks one)")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

//nolint:funlen,cyclop // by design
func startServer() error {
	var logger *log.Logger
	var sqlLogger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
		sqlLogger = log.New(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))

	default:
		logger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))

		sqlLogger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if config.LogFilter != "" {
		filtered, err := log.ApplyFilter(logger, config.LogFilter)
		if err != nil {
			return err
		}
		logger = filtered
	}

	log.ResetDefault(logger)

	log.Debug("Config:",
		log.String("apiAddr", config.APIAddr),
		log.String("db", config.DB),
		log.String("natsUrl", config.NatsURL),
		log.String("blockInterval", config.BlockInterval),
	)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	waitForRequiredServices()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chn := setupChain(ctx)
	reg := registry.NewMemRegistry()
	led := ledger.NewMemLedger()

	// engine events fan out to NATS and the archiver; a slow consumer is
	// skipped, never blocking the engine
	eventSource := make(chan racing.Event, 256)
	bcst := broadcast.NewBroadcastServer("events", eventSource)
	defer bcst.Close()

	engine := racing.NewEngine(chn, reg, led,
		racing.WithLogger(logger.Named("racing")),
		racing.WithEventSink(func(ev racing.Event) {
			select {
			case eventSource <- ev:
			default:
				log.Warn("event fan-out full, dropping",
					log.String("kind", ev.EventKind()))
			}
		}))
	defer engine.Close()

	if config.NatsURL != "" {
		conn, err := nats.Connect(config.NatsURL)
		if err != nil {
			log.Error("could not connect to NATS", log.ErrorField(err))
			return err
		}
		pub := natspub.NewPublisher(conn, natspub.WithLogger(logger.Named("natspub")))
		defer pub.Close()
		go func() {
			for ev := range bcst.Subscribe() {
				pub.Publish(ev)
			}
		}()
	}

	var pool *pgxpool.Pool
	if config.DB != "" {
		pool = postgres.InitWithUrl(
			config.DB,
			postgres.WithTracer(sqlLogger.Sugar()),
		)
		defer pool.Close()
		go archiveEvents(ctx, bcst.Subscribe(), engine, pool)
	}

	apiOpts := []api.Option{
		api.WithEngine(engine),
		api.WithChain(chn),
		api.WithRegistry(reg),
		api.WithLedger(led),
		api.WithLogger(logger.Named("api")),
	}
	if pool != nil {
		apiOpts = append(apiOpts, api.WithArchive(pool))
	}
	apiServer := api.NewServer(apiOpts...)

	log.Info("Starting HTTP API", log.String("addr", config.APIAddr))
	//nolint:gosec // by design
	server := &http.Server{
		Addr:    config.APIAddr,
		Handler: h2c.NewHandler(newCORS().Handler(apiServer.Handler()), &http2.Server{}),
	}
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()
	setupGoRoutinesDump()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	select {
	case v := <-sigChan:
		log.Debug("Got signal", log.Any("signal", v))
	case err := <-errChan:
		log.Error("server could not be started", log.ErrorField(err))
		return err
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	//nolint:errcheck // shutting down anyway
	server.Shutdown(shutdownCtx)

	log.Info("Server terminated")
	return nil
}

// setupChain builds the in-process chain from the configured genesis seed
// and seals heights on the configured interval.
func setupChain(ctx context.Context) *simchain.SimChain {
	var genesis [32]byte
	if config.ChainSeed != "" {
		raw, err := hex.DecodeString(config.ChainSeed)
		if err != nil || len(raw) > 32 {
			log.Fatal("invalid chain seed", log.ErrorField(err))
		}
		copy(genesis[:], raw)
	} else {
		//nolint:errcheck // crypto/rand does not fail
		rand.Read(genesis[:])
		log.Info("generated chain seed",
			log.String("seed", hex.EncodeToString(genesis[:])))
	}
	chn := simchain.New(genesis)
	chn.Advance(1) // height 0 is never sealed

	interval, err := time.ParseDuration(config.BlockInterval)
	if err != nil {
		log.Warn("Invalid block interval. Setting default 2s", log.ErrorField(err))
		interval = 2 * time.Second
	}
	go chn.Run(ctx, interval)
	return chn
}

// archiveEvents persists each race once it reaches a terminal state.
func archiveEvents(
	ctx context.Context,
	events <-chan racing.Event,
	engine *racing.Engine,
	pool *pgxpool.Pool,
) {
	for ev := range events {
		var raceID uint64
		switch e := ev.(type) {
		case racing.RaceSettledEvent:
			raceID = e.RaceID
		case racing.RaceRefundedEvent:
			raceID = e.RaceID
		default:
			continue
		}
		snap, err := engine.RaceSnapshot(raceID)
		if err != nil {
			log.Error("archive: race lookup failed",
				log.Uint64("race", raceID), log.ErrorField(err))
			continue
		}
		lanes := make([]racing.LaneSnapshot, 0, snap.LanesReady)
		for lane := uint8(1); lane <= snap.LanesReady; lane++ {
			ls, lErr := engine.LaneSnapshot(raceID, lane)
			if lErr != nil {
				log.Error("archive: lane lookup failed",
					log.Uint64("race", raceID), log.ErrorField(lErr))
				continue
			}
			lanes = append(lanes, ls)
		}
		if err := archive.Create(ctx, pool, snap, lanes); err != nil {
			log.Error("archive: write failed",
				log.Uint64("race", raceID), log.ErrorField(err))
		}
	}
}

func waitForRequiredServices() {
	var err error
	var timeout time.Duration
	if timeout, err = time.ParseDuration(config.WaitForServices); err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	if config.DB != "" {
		postgresAddr := utils.ExtractFromDBURL(config.DB)
		if err = utils.WaitForTCP(postgresAddr, timeout); err != nil {
			log.Fatal("database not ready", log.ErrorField(err))
		}
	}
	if config.NatsURL != "" {
		natsAddr := utils.ExtractFromNatsURL(config.NatsURL)
		if err = utils.WaitForTCP(natsAddr, timeout); err != nil {
			log.Fatal("nats not ready", log.ErrorField(err))
		}
	}
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			log.Info("Goroutine dump", log.String("dump", string(buf[:stacklen])))
		}
	}()
}

func newCORS() *cors.Cors {
	// permissive setup so browser frontends can use the API directly
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			"Accept",
			"Accept-Encoding",
			"Content-Encoding",
		},
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
