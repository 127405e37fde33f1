// server is the Vault Memory Router binary: it wires the configured
// embedding provider, Qdrant replica and Redis warmth registry into a
// VaultRegistry and RetrievalCoordinator, then serves the Vault RPC
// surface over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"vaultmemory/internal/api"
	"vaultmemory/internal/config"
	"vaultmemory/internal/embeddings"
	"vaultmemory/internal/registry"
	"vaultmemory/internal/retrieval"
	"vaultmemory/internal/retry"
	"vaultmemory/internal/storage"
	"vaultmemory/internal/vault"
	"vaultmemory/internal/warmth"
)

func main() {
	addr := flag.String("addr", "", "HTTP server address (overrides VAULT_HOST/VAULT_PORT)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		log.Fatalf("failed to build embedding service: %v", err)
	}

	mirror, raceReplica, closeReplica, err := buildReplica(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build replica: %v", err)
	}
	if closeReplica != nil {
		defer closeReplica()
	}

	warmthReg, closeWarmth := buildWarmth(cfg)
	if closeWarmth != nil {
		defer closeWarmth()
	}

	reg := registry.New(cfg, embedder, mirror, warmthReg)
	coordinator := retrieval.New(registryProvider{reg}, raceReplica, cfg.Temporal, cfg.Race)
	router := api.New(reg, coordinator, asReplicaChecker(raceReplica), asWarmthChecker(warmthReg))

	go runHibernationSweep(ctx, reg, cfg.Vault.HibernateAfter)

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	}

	log.Printf("vault memory router listening on %s", listenAddr)
	if err := startAndRunHTTPServer(ctx, router.Handler(), listenAddr, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("http server error: %v", err)
	}
}

// registryProvider adapts *registry.Registry to retrieval.VaultProvider: the
// coordinator only ever needs read/search access to a vault, never its
// write surface.
type registryProvider struct{ reg *registry.Registry }

func (p registryProvider) Get(ctx context.Context, name string) (retrieval.VaultSearcher, error) {
	return p.reg.Get(ctx, name)
}

// asReplicaChecker narrows replica to the HealthCheck face api.New wants.
// replica's static interface (retrieval.ReplicaSearcher) doesn't declare
// HealthCheck even though both concrete replicas implement it, so this
// needs a runtime assertion; a nil replica (no Qdrant configured) asserts
// to a nil checker, which disables that /healthz probe.
func asReplicaChecker(replica retrieval.ReplicaSearcher) interface {
	HealthCheck(ctx context.Context) error
} {
	hc, _ := replica.(interface {
		HealthCheck(ctx context.Context) error
	})
	return hc
}

// asWarmthChecker narrows warmthReg to the Ping face api.New wants, for the
// same reason as asReplicaChecker.
func asWarmthChecker(warmthReg vault.WarmthReporter) interface {
	Ping(ctx context.Context) error
} {
	p, _ := warmthReg.(interface {
		Ping(ctx context.Context) error
	})
	return p
}

func buildEmbedder(cfg *config.Config) (vault.Embedder, error) {
	var base embeddings.Service
	switch cfg.Embedding.Provider {
	case "mock":
		base = embeddings.NewMockService(cfg.Embedding.Dimensions)
	default:
		base = embeddings.NewOpenAIService(&cfg.Embedding)
	}

	retried := embeddings.NewRetryableService(base, retry.DefaultConfig())
	return embeddings.NewCircuitBreakerService(retried, nil), nil
}

// buildReplica constructs the always-warm Qdrant replica, returning both
// faces a Vault needs: a Mirror for tracked bulk writes (retry-wrapped, so
// sync failures report an attempt count) and a ReplicaSearcher for the
// Hot/Cold race's read path (circuit-breaker wrapped, so a degraded
// Qdrant never blocks a search). A nil Qdrant host disables replication
// entirely: both the Vault and the race fall back to authoritative-only.
func buildReplica(ctx context.Context, cfg *config.Config) (vault.Mirror, retrieval.ReplicaSearcher, func(), error) {
	if cfg.Qdrant.Host == "" {
		return nil, nil, nil, nil
	}

	replica := storage.NewReplica(&cfg.Qdrant)
	if err := replica.Initialize(ctx, cfg.Embedding.Dimensions); err != nil {
		log.Printf("replica unavailable, continuing without it: %v", err)
		return nil, nil, nil, nil
	}

	mirror := storage.NewRetryableReplica(replica, nil)
	reader := storage.NewCircuitBreakerReplica(replica, nil)
	return mirror, reader, func() { _ = replica.Close() }, nil
}

func buildWarmth(cfg *config.Config) (vault.WarmthReporter, func()) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	reg := warmth.New(&cfg.Redis)
	if err := reg.Ping(context.Background()); err != nil {
		log.Printf("warmth registry unavailable, continuing without it: %v", err)
		return nil, nil
	}
	return reg, func() { _ = reg.Close() }
}

// runHibernationSweep periodically releases idle vault handles so a
// process serving many tenants doesn't keep every one hydrated forever.
func runHibernationSweep(ctx context.Context, reg *registry.Registry, after time.Duration) {
	if after <= 0 {
		return
	}
	ticker := time.NewTicker(after / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := reg.HibernateIdle(ctx, now); n > 0 {
				log.Printf("hibernated %d idle vaults", n)
			}
		}
	}
}

func startAndRunHTTPServer(ctx context.Context, handler http.Handler, addr string, cfg *config.Config) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second) //nolint:contextcheck // fresh context needed once the parent is already cancelled
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
