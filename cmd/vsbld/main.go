// Command vsbld runs the visibility-credits ledger node: it owns the
// LevelDB-backed ledger, bootstraps the admin role on first start, and
// serves the gateway's HTTP surface (health, metrics, and the /v1 query and
// transaction-submission routes) directly out of the same process.
package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vsbld/cmd/internal/passphrase"
	"vsbld/config"
	"vsbld/core/events"
	"vsbld/core/ledger"
	"vsbld/crypto"
	gatewayauth "vsbld/gateway/auth"
	gatewayconfig "vsbld/gateway/config"
	gatewayevents "vsbld/gateway/events"
	"vsbld/gateway/middleware"
	"vsbld/gateway/routes"
	"vsbld/observability"
	"vsbld/observability/logging"
	telemetry "vsbld/observability/otel"
	"vsbld/storage"
)

// servicesEscrowSeed derives the services engine's fixed escrow address. It
// holds no private key; nothing ever signs on its behalf, it is only ever
// the from/to side of an internal credits transfer (§4.2).
const servicesEscrowSeed = "vsbld/native/services: escrow"

func main() {
	var cfgPath string
	var gatewayCfgPath string
	flag.StringVar(&cfgPath, "config", "vsbld.toml", "path to node configuration")
	flag.StringVar(&gatewayCfgPath, "gateway-config", "", "path to gateway configuration (optional)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VSBLD_ENV"))
	slogger := logging.Setup("vsbld", env)
	logger := log.New(os.Stdout, "vsbld ", log.LstdFlags|log.Lmsgprefix)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "vsbld",
		Environment: env,
		Component:   "node",
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		slogger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	admin, err := loadAdmin(cfg)
	if err != nil {
		logger.Fatalf("load admin key: %v", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Fatalf("open data directory %s: %v", cfg.DataDir, err)
	}
	defer db.Close()

	selfAddress := servicesEscrowAddress()
	led := ledger.New(db, selfAddress)
	eventsHub := gatewayevents.NewHub()
	eventsHub.Next = events.NoopEmitter{}
	led.SetEmitter(observability.MetricsEmitter{Next: eventsHub})

	bootstrapped, err := isBootstrapped(db)
	if err != nil {
		logger.Fatalf("check bootstrap state: %v", err)
	}
	if !bootstrapped {
		var adminAddr [20]byte
		copy(adminAddr[:], admin.PubKey().Address().Bytes())
		if err := led.Bootstrap(adminAddr); err != nil {
			logger.Fatalf("bootstrap admin role: %v", err)
		}
		if err := markBootstrapped(db); err != nil {
			logger.Fatalf("persist bootstrap marker: %v", err)
		}
		logger.Printf("bootstrapped admin role for %s", logging.MaskAddress(admin.PubKey().Address().String()))
	}

	gatewayCfg, err := gatewayconfig.Load(gatewayCfgPath)
	if err != nil {
		logger.Fatalf("load gateway config: %v", err)
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: gatewayCfg.Observability.ServiceName,
		LogRequests: gatewayCfg.Observability.LogRequests,
		Enabled:     gatewayCfg.Observability.Metrics || gatewayCfg.Observability.Tracing,
	}, logger)

	jwtAuth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        gatewayCfg.Auth.Enabled,
		HMACSecret:     gatewayCfg.Auth.HMACSecret,
		Issuer:         gatewayCfg.Auth.Issuer,
		Audience:       gatewayCfg.Auth.Audience,
		ScopeClaim:     gatewayCfg.Auth.ScopeClaim,
		OptionalPaths:  gatewayCfg.Auth.OptionalPaths,
		AllowAnonymous: gatewayCfg.Auth.AllowAnonymous,
		ClockSkew:      gatewayCfg.Auth.ClockSkew,
	}, logger)

	hmacAuth, noncePersistence, err := buildHMACAuthenticator(cfg, logger)
	if err != nil {
		logger.Fatalf("configure transaction signing auth: %v", err)
	}
	if noncePersistence != nil {
		defer noncePersistence.Close()
	}

	rateLimits := middleware.DefaultRateLimits()
	for _, entry := range gatewayCfg.RateLimits {
		if entry.ID == "" {
			continue
		}
		perMinute := entry.RequestsPerMinute
		if perMinute <= 0 && entry.RatePerSecond > 0 {
			perMinute = entry.RatePerSecond * 60.0
		}
		rateLimits[entry.ID] = middleware.RateLimit{RequestsPerMinute: perMinute, Burst: entry.Burst}
	}

	router, err := routes.New(routes.Config{
		Ledger:          led,
		JWTAuth:         jwtAuth,
		HMACAuth:        hmacAuth,
		RateLimiter:     middleware.NewRateLimiter(rateLimits, logger),
		MutatingRateKey: "transactions",
		EventsHub:       eventsHub,
		Observability:   obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", gatewayauth.HeaderAPIKey, gatewayauth.HeaderTimestamp, gatewayauth.HeaderNonce, gatewayauth.HeaderSignature},
			AllowCredentials: false,
		},
	})
	if err != nil {
		logger.Fatalf("configure routes: %v", err)
	}

	handler := router
	if gatewayCfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, "vsbld")
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:         gatewayCfg.ListenAddress,
		Handler:      mux,
		ReadTimeout:  gatewayCfg.ReadTimeout,
		WriteTimeout: gatewayCfg.WriteTimeout,
		IdleTimeout:  gatewayCfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if noncePersistence != nil {
		go pruneNoncesPeriodically(ctx, noncePersistence, logger)
	}

	listener, err := net.Listen("tcp", gatewayCfg.ListenAddress)
	if err != nil {
		logger.Fatalf("listen: %v", err)
	}
	go func() {
		logger.Printf("listening on http://%s", listener.Addr())
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Fatalf("listen and serve: %v", serveErr)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

// loadAdmin resolves the admin private key from the configured keystore,
// prompting for (or reading from the environment) the decryption
// passphrase. KMS-backed admin keys (AdminKMSURI/AdminKMSEnv) are not yet
// implemented; config.Load accepts the fields so operators can adopt them
// without a config migration once a KMS client is wired in. When
// VSBLD_ADMIN_AUTOGENERATE is set, a missing keystore is treated as a
// first-run bootstrap rather than a fatal error: this ledger has no genesis
// process to provision the admin role's key ahead of time.
func loadAdmin(cfg *config.Config) (*crypto.PrivateKey, error) {
	if cfg.AdminKMSURI != "" || cfg.AdminKMSEnv != "" {
		return nil, errUnsupportedKMS
	}
	source := passphrase.NewSource("VSBLD_ADMIN_PASSPHRASE")
	pass, err := source.Get()
	if err != nil {
		return nil, err
	}
	autogenerate := strings.TrimSpace(os.Getenv("VSBLD_ADMIN_AUTOGENERATE")) != ""
	return crypto.EnsureAdminKeystore(cfg.AdminKeystorePath, pass, autogenerate)
}

var errUnsupportedKMS = errors.New("KMS-backed admin keys are not supported yet; configure AdminKeystorePath instead")

func servicesEscrowAddress() [20]byte {
	sum := sha256.Sum256([]byte(servicesEscrowSeed))
	var addr [20]byte
	copy(addr[:], sum[:20])
	return addr
}

var bootstrapKey = []byte("vsbld:bootstrapped")

func isBootstrapped(db storage.Database) (bool, error) {
	_, err := db.Get(bootstrapKey)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func markBootstrapped(db storage.Database) error {
	return db.Put(bootstrapKey, []byte{1})
}

// buildHMACAuthenticator also returns the underlying nonce persistence
// handle (nil when auth is disabled) so the caller can schedule periodic
// pruning against it.
func buildHMACAuthenticator(cfg *config.Config, logger *log.Logger) (*gatewayauth.Authenticator, *gatewayauth.LevelDBNoncePersistence, error) {
	secret := strings.TrimSpace(os.Getenv("VSBLD_TX_HMAC_SECRET"))
	apiKey := strings.TrimSpace(os.Getenv("VSBLD_TX_API_KEY"))
	if secret == "" || apiKey == "" {
		logger.Println("VSBLD_TX_API_KEY/VSBLD_TX_HMAC_SECRET not set; transaction submission auth disabled")
		return gatewayauth.NewAuthenticator(nil, 0, 0, 0, nil, nil), nil, nil
	}
	persistence, err := gatewayauth.NewLevelDBNoncePersistence(filepath.Join(cfg.DataDir, "gateway-nonces"))
	if err != nil {
		return nil, nil, err
	}
	return gatewayauth.NewAuthenticator(map[string]string{apiKey: secret}, 0, 0, 0, nil, persistence), persistence, nil
}

const noncePruneInterval = 15 * time.Minute
const noncePruneTTL = 24 * time.Hour

// pruneNoncesPeriodically deletes transaction-submission nonce records
// older than noncePruneTTL on a fixed interval, until ctx is cancelled.
func pruneNoncesPeriodically(ctx context.Context, persistence *gatewayauth.LevelDBNoncePersistence, logger *log.Logger) {
	ticker := time.NewTicker(noncePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := persistence.PruneExpired(ctx, noncePruneTTL); err != nil {
				logger.Printf("prune transaction nonces: %v", err)
			}
		}
	}
}
