// Command smsbox is the routing core's standalone process: it dials
// bearerbox, loads the translation table and DLR store from its
// configuration file, and runs the obey/result loops alongside the
// sendsms/sendota HTTP ingress and the admin GraphQL/websocket surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/bearerbox"
	"github.com/kannel-go/smsbox/internal/config"
	"github.com/kannel-go/smsbox/internal/counters"
	"github.com/kannel-go/smsbox/internal/dbpool"
	"github.com/kannel-go/smsbox/internal/dlr"
	"github.com/kannel-go/smsbox/internal/gateway"
	"github.com/kannel-go/smsbox/internal/ingress"
	"github.com/kannel-go/smsbox/internal/msg"
	"github.com/kannel-go/smsbox/internal/obey"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "kannel.conf", "path to the routing core's TOML configuration file")
		tryHTTP    = pflag.BoolP("tryhttp", "H", false, "do not exit if the sendsms HTTP port fails to bind")
	)
	pflag.Parse()
	if pflag.NArg() > 0 {
		*configPath = pflag.Arg(0)
	}

	logger := newLogger(getEnv("SMSBOX_LOG_LEVEL", "info"))
	defer logger.Sync()

	signal.Ignore(syscall.SIGPIPE)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading configuration", zap.Error(err))
	}
	if *tryHTTP {
		cfg.Core.TryHTTP = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconfigureOnSIGHUP(logger)

	translations := cfg.BuildTranslations()

	dlrStore, events, closeStore := buildDLRStore(ctx, cfg, logger)
	if closeStore != nil {
		defer closeStore()
	}
	if events != nil {
		defer events.Close()
	}

	link, err := bearerbox.Dial(ctx, fmt.Sprintf("%s:%d", cfg.Core.BearerboxHost, cfg.Core.BearerboxPort), bearerbox.JSONCodec)
	if err != nil {
		logger.Fatal("dialing bearerbox", zap.Error(err))
	}
	defer link.Close()

	cat := &counters.Catenation{}
	outstanding := &counters.Outstanding{}

	router := obey.NewRouter(translations, link, nil, cat, outstanding, logger, obey.Config{
		GlobalSender:           cfg.Core.GlobalSender,
		ReplyCouldNotFetch:     cfg.Core.ReplyCouldNotFetch,
		ReplyCouldNotRepresent: cfg.Core.ReplyCouldNotRepresent,
		UserAgent:              "smsbox",
	})

	mo := make(chan *msg.Message, 256)
	go pumpBearerbox(ctx, link, mo, cancel, logger)

	obeyWorkers := cfg.Core.ObeyWorkers
	if obeyWorkers <= 0 {
		obeyWorkers = 1
	}
	wg := obey.RunObeyWorkers(ctx, router, mo, obeyWorkers)
	go obey.RunResultLoop(ctx, router)

	hub := gateway.NewHub(logger)

	ingressSrv := ingress.NewServer(translations, link, cat, cfg.IngressConfig(), nil, logger)
	sendsmsAddr := fmt.Sprintf(":%d", cfg.Core.SendsmsPort)
	startHTTPServer(sendsmsAddr, ingressSrv.Router(), "sendsms ingress", cfg.Core.TryHTTP, logger)

	gatewaySrv, err := gateway.NewServer(translations, dlrStore, outstanding, hub, gateway.Config{
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
	}, logger)
	if err != nil {
		logger.Fatal("building admin gateway", zap.Error(err))
	}
	adminAddr := fmt.Sprintf(":%d", cfg.Core.AdminPort)
	startHTTPServer(adminAddr, gatewaySrv.Router(), "admin gateway", cfg.Core.TryHTTP, logger)

	logger.Info("smsbox started",
		zap.String("bearerbox", fmt.Sprintf("%s:%d", cfg.Core.BearerboxHost, cfg.Core.BearerboxPort)),
		zap.String("sendsms", sendsmsAddr),
		zap.String("admin", adminAddr),
		zap.Int("obeyWorkers", obeyWorkers),
	)

	waitForShutdown(logger)
	logger.Info("shutting down")
	cancel()
	close(mo)
	wg.Wait()
	logger.Info("shutdown complete")
}

// pumpBearerbox forwards every SMS frame off link onto mo, and cancels
// ctx on an administrative shutdown command or a link failure — a read
// error on this connection means bearerbox itself is gone.
func pumpBearerbox(ctx context.Context, link *bearerbox.Link, mo chan<- *msg.Message, cancel context.CancelFunc, log *zap.Logger) {
	for {
		frame, err := link.ReadMessage(ctx)
		if err != nil {
			log.Info("bearerbox link closed", zap.Error(err))
			cancel()
			return
		}
		switch frame.Kind {
		case bearerbox.KindAdminShutdown:
			log.Info("received admin shutdown from bearerbox")
			cancel()
			return
		case bearerbox.KindSMS:
			if frame.Message != nil && frame.Message.SMSType == msg.MO {
				select {
				case mo <- frame.Message:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// buildDLRStore opens the configured DLR back-end's connection pool and
// wraps it in the matching Store implementation. The returned close
// func tears the pool down; it is nil if no pool was opened.
func buildDLRStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (dlr.Store, *dlr.EventPublisher, func()) {
	var events *dlr.EventPublisher
	if len(cfg.Observability.KafkaBrokers) > 0 {
		events = dlr.NewEventPublisher(cfg.Observability.KafkaBrokers, log)
	}

	poolSize := cfg.DLRStore.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}

	switch cfg.DLRStore.Type {
	case "mongo":
		driver := dbpool.NewMongoDriver(cfg.MongoPool())
		pool, err := dbpool.New(ctx, driver, poolSize)
		if err != nil {
			log.Fatal("opening mongo pool", zap.Error(err))
		}
		store, err := dlr.NewMongoStore(ctx, pool, cfg.MongoPool(), cfg.DLRStore.Collection, log, events)
		if err != nil {
			log.Fatal("building mongo DLR store", zap.Error(err))
		}
		return store, events, pool.Destroy

	case "sql":
		var sqlCfg dbpool.SQLConfig
		var dialect dbpool.Dialect
		switch cfg.DLRStore.Dialect {
		case "mssql":
			sqlCfg = cfg.MSSQLPool()
			dialect = dbpool.MSSQL
		default:
			sqlCfg = cfg.PostgresPool()
			dialect = dbpool.Postgres
		}
		driver := dbpool.NewSQLDriver(sqlCfg)
		pool, err := dbpool.New(ctx, driver, poolSize)
		if err != nil {
			log.Fatal("opening sql pool", zap.Error(err))
		}
		fields := dlr.DefaultSQLFields
		if cfg.DLRStore.Table != "" {
			fields.Table = cfg.DLRStore.Table
		}
		store := dlr.NewSQLStore(pool, driver, dialect, fields, log, events)
		return store, events, pool.Destroy

	default:
		log.Fatal("unknown dlr-store type", zap.String("type", cfg.DLRStore.Type))
		return nil, nil, nil
	}
}

// startHTTPServer starts an HTTP server on addr in the background. A
// bind failure is fatal unless tryHTTP is set, mirroring the reference
// implementation's -H/--tryhttp flag.
func startHTTPServer(addr string, handler http.Handler, name string, tryHTTP bool, log *zap.Logger) {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if tryHTTP {
				log.Warn("http server failed to start, continuing", zap.String("server", name), zap.Error(err))
				return
			}
			log.Fatal("http server failed to start", zap.String("server", name), zap.Error(err))
		}
	}()
}

func waitForShutdown(log *zap.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	s := <-sigs
	log.Info("received signal", zap.String("signal", s.String()))
}

func reconfigureOnSIGHUP(log *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			log.Info("SIGHUP received; log output goes to stderr and is not re-opened")
		}
	}()
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
