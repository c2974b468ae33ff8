package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"matchmaker-relay/admin"
	apubsub "matchmaker-relay/admin/pubsub"
	"matchmaker-relay/bans"
	"matchmaker-relay/bans/mongostore"
	"matchmaker-relay/bans/redisstore"
	"matchmaker-relay/config"
	"matchmaker-relay/exitlog"
	"matchmaker-relay/gateway"
	"matchmaker-relay/health"
	"matchmaker-relay/liveness"
	"matchmaker-relay/matchmaker"
	"matchmaker-relay/metrics"
	"matchmaker-relay/notify"
	npubsub "matchmaker-relay/notify/pubsub"
	"matchmaker-relay/notify/webhook"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var version = "source"

func setLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	cfg := config.Load()
	setLogger(cfg.LogLevel)
	log.Info().Msgf("Starting matchmaker-relay version: %s", version)
	log.Info().Interface("config", cfg.Redacted()).Msg("config loaded")

	// Context and shutdown handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Notification sinks
	var sinks []notify.Sink
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.Sink{Name: "webhook", Notifier: webhook.New(cfg.WebhookURL)})
	}
	// Preflight Pub/Sub configuration
	if cfg.UsesPubsub() && cfg.GoogleProjectID == "" {
		log.Fatal().Msg("missing Google project id; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or RELAY_PUBSUB_PROJECT_ID")
	}
	var publisher *npubsub.Publisher
	if cfg.NotifyTopic != "" {
		publisher = npubsub.NewPublisher(cfg.GoogleProjectID, cfg.NotifyTopic, cfg.CredentialsFile)
		sinks = append(sinks, notify.Sink{Name: "pubsub", Notifier: publisher})
	}
	dispatcher := notify.NewDispatcher(cfg.NotifyTimeout, sinks...)

	// Ban stores: the account record always lives in Mongo unless running
	// fully in memory; the lookup record follows RELAY_BAN_LOOKUP.
	var (
		accounts bans.Accounts
		lookup   bans.Lookup
		closers  []func(context.Context) error
	)
	switch cfg.BanLookup {
	case config.LookupMemory:
		mem := bans.NewMemory()
		accounts, lookup = mem, mem
		log.Warn().Msg("using in-memory ban store; bans are lost on restart")
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		store, err := mongostore.Connect(connectCtx, mongostore.Options{
			URI:             cfg.MongoURI,
			UsersDB:         cfg.UsersDB,
			UsersCollection: cfg.UsersCollection,
			BansDB:          cfg.BansDB,
			BansCollection:  cfg.BansCollection,
			ConnectTimeout:  cfg.BanCheckTimeout,
		})
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create mongo client")
		}
		closers = append(closers, store.Close)
		accounts, lookup = store, store

		if cfg.BanLookup == config.LookupRedis {
			rs := redisstore.Dial(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err := rs.Ping(ctx); err != nil {
				log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed; continuing")
			}
			closers = append(closers, func(context.Context) error { return rs.Close() })
			lookup = rs
		} else {
			idxCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := store.EnsureIndexes(idxCtx); err != nil {
				log.Warn().Err(err).Msg("failed to ensure ban lookup index")
			}
			cancel()
		}
	}
	gate := bans.NewGate(lookup)
	banAdmin := bans.NewAdmin(accounts, lookup, dispatcher)

	// Liveness
	monitor := liveness.NewMonitor(dispatcher,
		liveness.Endpoint{Name: liveness.GameEndpoint, Interval: cfg.GameProbeInterval, Prober: liveness.PortProbe{Addr: cfg.GameProbeAddr}},
		liveness.Endpoint{Name: liveness.BackendEndpoint, Interval: cfg.BackendProbeInterval, Prober: liveness.PortProbe{Addr: cfg.BackendProbeAddr}},
	)

	manager := matchmaker.NewManager(gate, monitor, matchmaker.Options{
		BanCheckTimeout: cfg.BanCheckTimeout,
		FailClosed:      cfg.BanFailClosed,
	})

	// Status page, metrics and health
	mux := http.NewServeMux()
	metrics.Register(mux)
	health.Register(mux, cfg.Name, monitor)
	statusSrv := &http.Server{
		Addr:              cfg.StatusAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.StatusAddr()).Msgf("%s Status: Matchmaker is Online!!!", cfg.Name)
		if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("status server error")
		}
	}()

	// Client WebSocket endpoint
	wsSrv := &http.Server{
		Addr:              cfg.WSAddr(),
		Handler:           gateway.New(ctx, manager),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.WSAddr()).Msg("WebSocket server started")
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("websocket server error")
		}
	}()

	// Everything that can raise a notification runs under producers, so the
	// dispatcher is closed only after they have all returned.
	var producers sync.WaitGroup
	producers.Add(2)
	go func() {
		defer producers.Done()
		if _, err := monitor.Check(ctx, liveness.BackendEndpoint); err != nil {
			log.Warn().Err(err).Msg("initial backend check failed")
		}
		monitor.Run(ctx)
	}()
	go func() {
		defer producers.Done()
		if err := admin.NewConsole(os.Stdin, os.Stdout, banAdmin).Run(ctx); err != nil {
			log.Error().Err(err).Msg("admin console stopped")
		}
	}()

	var subscriber *apubsub.Subscriber
	if cfg.AdminSubscription != "" {
		subscriber = apubsub.NewSubscriber(cfg.GoogleProjectID, cfg.AdminSubscription, cfg.CredentialsFile)
		producers.Add(1)
		go func() {
			defer producers.Done()
			log.Info().Str("subscription", cfg.AdminSubscription).Msg("starting admin command subscriber")
			if err := subscriber.Start(ctx, func(ctx context.Context, cmd admin.Command) error {
				_, err := admin.Apply(ctx, banAdmin, cmd)
				return err
			}); err != nil {
				log.Error().Err(err).Msg("admin command subscriber exited")
			}
		}()
	}

	// Block until shutdown
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("websocket server graceful shutdown failed")
	}
	if err := statusSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("status server graceful shutdown failed")
	}
	producers.Wait()
	dispatcher.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("pubsub publisher close failed")
		}
	}
	if subscriber != nil {
		if err := subscriber.Close(); err != nil {
			log.Error().Err(err).Msg("pubsub subscriber close failed")
		}
	}
	for _, c := range closers {
		if err := c(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("store close failed")
		}
	}
	if path, err := exitlog.Write(cfg.LogDir, time.Now()); err != nil {
		log.Error().Err(err).Msg("failed to write exit log")
	} else {
		log.Info().Str("file", path).Msg("Application exited")
	}
	log.Info().Msg("shutdown complete")
}
