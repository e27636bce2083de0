package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/analysis"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/config"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/handler"
	hgrpc "github.com/OneStaffOS/OnestaffOS-sub007/internal/handler/grpc"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/publisher"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/repository"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/router"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/security"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/service"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/usecase"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/cache"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/faceverify"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/jwtutil"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const rsaKeyVersion = 1

type stores struct {
	challenges repository.ChallengeRepository
	templates  repository.TemplateRepository
	events     repository.EventRepository
	ping       handler.Pinger
	close      func()
}

func main() {
	cfg := config.Load()

	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	if err := cfg.Biometrics.Validate(); err != nil {
		logger.Fatal("invalid biometrics config", zap.Error(err))
	}
	if cfg.Biometrics.FaceVerificationSecret == "" {
		// verify and the clock-in guard fail closed until this is set
		logger.Warn("FACE_VERIFICATION_SECRET not set; face verification is unavailable")
	}

	ctx := context.Background()

	// --- Storage ---
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()

	// --- Redis (request throttling) ---
	rc := cache.NewCache([]string{cfg.RedisAddr}, cfg.RedisPass, false)
	defer rc.Close()

	// --- Kafka ---
	var pub publisher.Publisher = publisher.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		w := publisher.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer w.Close()
		pub = publisher.NewKafkaPublisher(w, logger)
		logger.Info("publishing recognition events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// --- Keys ---
	codec, err := loadCodec(cfg, logger)
	if err != nil {
		logger.Fatal("failed to load capture key", zap.Error(err))
	}
	templateKey := cfg.Biometrics.TemplateKey
	if templateKey == "" {
		if !cfg.IsDevelopment() {
			logger.Fatal("BIOMETRICS_TEMPLATE_KEY is required")
		}
		templateKey, err = security.GenerateMasterKey()
		if err != nil {
			logger.Fatal("failed to generate template key", zap.Error(err))
		}
		logger.Warn("using an ephemeral template key; enrolments will not survive a restart")
	}
	enc, err := security.NewEncryption(templateKey)
	if err != nil {
		logger.Fatal("invalid template key", zap.Error(err))
	}

	verifier, err := jwtutil.LoadAndBuild(jwtutil.JWTConfig{
		PubPath:     cfg.JWTPublicKeyPath,
		Issuer:      cfg.JWTIssuer,
		Audience:    cfg.JWTAudience,
		RotatedKeys: cfg.JWTRotatedKeys,
	})
	if err != nil {
		logger.Fatal("failed to load JWT public key", zap.Error(err))
	}

	// --- Services & usecase ---
	bc := cfg.Biometrics
	analyzer := analysis.NewClient(bc.ServiceURL, bc.AnalysisTimeout, logger)
	tokens := service.NewTokenService(st.events, bc.FaceVerificationSecret, bc.VerificationTTL)

	uc := usecase.NewBiometricUsecase(bc, usecase.Deps{
		Challenges: service.NewChallengeService(st.challenges, bc),
		Templates:  service.NewTemplateService(st.templates, enc, bc.MaxTemplateCount),
		Lockout:    service.NewLockoutPolicy(st.events, bc),
		Tokens:     tokens,
		Recorder:   service.NewEventRecorder(st.events, pub, logger),
		Codec:      codec,
		Analyzer:   analyzer,
	}, logger)

	// base64 envelope plus JSON framing
	captureLimit := int64(bc.MaxPayloadBytes)*2 + 64<<10

	r := router.SetupRoutes(chi.NewRouter(), router.Handlers{
		Biometric:  handler.NewBiometricHandler(uc, captureLimit, logger),
		Attendance: handler.NewAttendanceHandler(logger),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"store":    st.ping,
			"redis":    rc,
			"analysis": handler.PingFunc(analyzer.Health),
		}),
	}, middleware.NewAuthMiddleware(verifier, logger), rc, tokens)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- gRPC server (token redemption for downstream guards) ---
	grpcServer := grpc.NewServer()
	faceverify.RegisterFaceVerificationServer(grpcServer, hgrpc.NewVerificationGRPCHandler(uc, logger))
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(faceverify.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen for grpc", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("biometrics gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("biometrics service starting", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("biometrics service shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		healthSrv.Shutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}
		grpcServer.GracefulStop()
	case err := <-errCh:
		logger.Error("biometrics service failed", zap.Error(err))
		grpcServer.Stop()
	}
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store; state is lost on restart")
		m := repository.NewMemoryStore()
		return &stores{
			challenges: m.Challenges(),
			templates:  m.Templates(),
			events:     m.Events(),
			ping:       handler.PingFunc(func(context.Context) error { return nil }),
			close:      func() {},
		}, nil
	case "postgres", "":
		pool, err := config.ConnectDB(ctx, logger)
		if err != nil {
			return nil, err
		}
		return &stores{
			challenges: repository.NewChallengeRepo(pool),
			templates:  repository.NewTemplateRepo(pool),
			events:     repository.NewEventRepo(pool),
			ping:       handler.PingFunc(pool.Ping),
			close:      pool.Close,
		}, nil
	default:
		return nil, errors.New("unknown STORE_DRIVER " + cfg.StoreDriver)
	}
}

func loadCodec(cfg config.Config, logger *zap.Logger) (*security.HybridCodec, error) {
	if path := cfg.Biometrics.RSAPrivateKeyPath; path != "" {
		return security.LoadHybridCodec(path, rsaKeyVersion)
	}
	if !cfg.IsDevelopment() {
		return nil, errors.New("BIOMETRICS_RSA_PRIVATE_KEY_PATH is required")
	}
	logger.Warn("generating an ephemeral capture key pair")
	return security.GenerateHybridCodec(2048)
}
