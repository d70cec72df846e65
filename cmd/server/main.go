/*
main.go - Application entry point

PURPOSE:
  Starts the rental registry server. Wires configuration, the journal,
  event sinks and the HTTP API, and shuts them down in reverse order.

STARTUP SEQUENCE:
  1. Load .env, environment and flags
  2. Open the journal (memory, sqlite or postgres)
  3. Replay the journal into a fresh registry
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides SERVER_PORT)
  -db      SQLite database path (overrides SQLITE_PATH)
           Use ":memory:" for an in-memory database
  -driver  Journal driver: memory, sqlite, postgres (overrides STORE_DRIVER)

ENVIRONMENT:
  See config/config.go for every key and its default.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections and drain requests
  2. Flush event sinks
  3. Close the journal

EXAMPLES:
  ./server -db="./data/rental.db"
  STORE_DRIVER=postgres POSTGRES_DSN=postgres://... ./server
  KAFKA_BROKERS=localhost:9092 REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - registry/journal.go: Replay on startup
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/warp/rental-engine/api"
	"github.com/warp/rental-engine/booking"
	"github.com/warp/rental-engine/closer"
	"github.com/warp/rental-engine/config"
	"github.com/warp/rental-engine/event"
	"github.com/warp/rental-engine/logger"
	"github.com/warp/rental-engine/registry"
	"github.com/warp/rental-engine/registry/store"
	"github.com/warp/rental-engine/store/postgres"
	"github.com/warp/rental-engine/store/sqlite"
	"go.uber.org/zap"
)

const producer = "rental-engine"

func main() {
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	driver := flag.String("driver", "", "Journal driver (memory, sqlite, postgres)")
	flag.Parse()

	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.SQLitePath = *dbPath
	}
	if *driver != "" {
		cfg.Store.Driver = *driver
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.Server.Env)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := closer.New(5*time.Second, log)

	journal, err := openJournal(ctx, cfg.Store, c)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	recorder := event.NewRecorder(producer, cfg.Events.Recent)
	sink, err := openSinks(cfg.Events, recorder, log, c)
	if err != nil {
		return fmt.Errorf("open event sinks: %w", err)
	}

	reg, err := registry.Restore(ctx, registry.Config{
		Admin:   booking.NewAddress(cfg.Registry.Admin),
		Name:    cfg.Registry.Name,
		Symbol:  cfg.Registry.Symbol,
		BaseURI: cfg.Registry.BaseURI,
		Journal: journal,
		Sink:    sink,
		Logger:  log,
	})
	if err != nil {
		_ = c.Close(context.Background())
		return fmt.Errorf("restore registry: %w", err)
	}

	router := api.NewRouter(api.NewHandler(reg, recorder, log))
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	c.Add("http server", server.Shutdown)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("driver", cfg.Store.Driver),
			zap.Uint64("products", reg.ProductsCount()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err := <-serveErr:
		if err != nil {
			log.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Close(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func openJournal(ctx context.Context, cfg config.StoreConfig, c *closer.Closer) (registry.Journal, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverSQLite:
		j, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.AddError("sqlite journal", j.Close)
		return j, nil
	case config.DriverPostgres:
		j, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		c.AddError("postgres journal", j.Close)
		return j, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

func openSinks(cfg config.EventsConfig, recorder *event.Recorder, log *zap.Logger, c *closer.Closer) (event.Sink, error) {
	sinks := event.Multi{recorder}

	if len(cfg.KafkaBrokers) > 0 {
		kp, err := event.NewKafkaPublisher(event.KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Producer: producer,
		})
		if err != nil {
			return nil, err
		}
		c.AddError("kafka publisher", kp.Close)
		sinks = append(sinks, event.Logging{Sink: kp, Logger: log.Named("kafka")})
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		c.AddError("redis client", client.Close)
		rs := event.NewRedisStream(client, cfg.RedisStream, producer, cfg.RedisMaxLen)
		sinks = append(sinks, event.Logging{Sink: rs, Logger: log.Named("redis")})
	}
	return sinks, nil
}
