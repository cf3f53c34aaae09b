package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/swarmstep/swarmstep/internal/catalog"
	"github.com/swarmstep/swarmstep/internal/cluster"
	"github.com/swarmstep/swarmstep/internal/control"
	"github.com/swarmstep/swarmstep/internal/master"
	"github.com/swarmstep/swarmstep/internal/wire"
	"github.com/swarmstep/swarmstep/pkg/config"
	"github.com/swarmstep/swarmstep/pkg/observability"
	"github.com/swarmstep/swarmstep/pkg/snapshot"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configFile = flag.String("config", getEnv("CONFIG_FILE", "config/swarmstep.yaml"), "Cluster configuration file")
	selfIndex  = flag.Int("self", getEnvInt("SELF_INDEX", 0), "This process's master index into config.masters (0 plays coordinator)")
	httpPort   = flag.Int("http-port", getEnvInt("PORT", 8080), "Observability HTTP server port")

	tlsEnabled    = flag.Bool("tls", getEnvBool("TLS_ENABLED", false), "Enable mutual TLS between masters")
	tlsCert       = flag.String("tls-cert", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	tlsKey        = flag.String("tls-key", getEnv("TLS_KEY_FILE", ""), "TLS key file")
	tlsCA         = flag.String("tls-ca", getEnv("TLS_CA_FILE", ""), "TLS CA file")
	tlsServerName = flag.String("tls-server-name", getEnv("TLS_SERVER_NAME", ""), "Expected peer certificate server name")
)

func main() {
	flag.Parse()

	log.Printf("Starting swarmstep-node v%s (master %d)", Version, *selfIndex)

	observability.InitMetrics()
	healthChecker := observability.InitHealthChecker()
	healthChecker.RegisterCheck(observability.PingCheck())

	obsServer := observability.NewServer(*httpPort)
	errChan := make(chan error, 2)
	go func() {
		log.Printf("[master %d] observability HTTP server listening on :%d", *selfIndex, *httpPort)
		if err := obsServer.Start(); err != nil {
			errChan <- fmt.Errorf("observability server: %w", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, errChan); err != nil {
		errChan <- err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Printf("[master %d] fatal error: %v", *selfIndex, err)
	case <-quit:
		log.Printf("[master %d] shutting down", *selfIndex)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[master %d] observability server shutdown error: %v", *selfIndex, err)
	}

	log.Printf("[master %d] stopped", *selfIndex)
}

// run builds the cluster, the catalog-backed master and its control-plane
// role, and starts serving. It returns once the master's gRPC listener is
// up; errChan receives any error surfacing afterwards (e.g. the listener
// crashing, a follower's Wait loop failing).
func run(ctx context.Context, errChan chan<- error) error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	self := catalog.MasterID(*selfIndex)
	if int(self) >= len(cfg.Masters) {
		return fmt.Errorf("self index %d out of range for %d masters", self, len(cfg.Masters))
	}

	cat, err := buildDemoCatalog()
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}

	addrs := make(map[catalog.MasterID]string, len(cfg.Masters))
	for i, addr := range cfg.Masters {
		addrs[catalog.MasterID(i)] = addr
	}

	tlsCfg := &cluster.TLSConfig{
		Enabled:    *tlsEnabled,
		CertFile:   *tlsCert,
		KeyFile:    *tlsKey,
		CAFile:     *tlsCA,
		ServerName: *tlsServerName,
	}
	peers, err := cluster.New(self, addrs, tlsCfg)
	if err != nil {
		return fmt.Errorf("connect cluster: %w", err)
	}

	groups := cfg.Groups
	if groups <= 0 {
		groups = runtime.NumCPU()
	}

	m := master.New(master.Config{
		Self:           self,
		NbMasters:      len(cfg.Masters),
		Catalog:        cat,
		Peers:          peers,
		ListenAddr:     addrs[self],
		Groups:         groups,
		RateLimit:      cfg.RateLimit.RequestsPerSecond,
		Burst:          cfg.RateLimit.Burst,
		MaxFailures:    cfg.RateLimit.MaxFailures,
		ResetAfterSecs: cfg.RateLimit.ResetAfterSecs,
	})
	m.SetExportSink(snapshot.NewExporter(cat, m.Registry()))

	var registerHooks []func(*grpc.Server)

	if self == 0 {
		coord := control.NewCoordinator(m, peers)
		bus := control.NewOrderBus()
		dispatcher := control.NewDispatcher(bus, coord, m.Pool())

		go func() {
			if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
				errChan <- fmt.Errorf("order dispatcher: %w", err)
			}
		}()

		registerHooks = append(registerHooks, func(s *grpc.Server) {
			wire.RegisterOrderServiceServer(s, control.NewServer(bus))
		})
	} else {
		follower := control.NewFollower(m)
		m.SetControlSink(follower)

		go func() {
			if err := follower.Wait(ctx); err != nil && ctx.Err() == nil {
				errChan <- fmt.Errorf("follower wait loop: %w", err)
			}
		}()
	}

	if err := m.Start(registerHooks...); err != nil {
		return fmt.Errorf("start master: %w", err)
	}

	go func() {
		<-ctx.Done()
		m.Stop()
	}()

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "1" || value == "true"
	}
	return defaultValue
}
