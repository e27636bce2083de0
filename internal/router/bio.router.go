package router

import (
	"net/http"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/handler"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Biometric  *handler.BiometricHandler
	Attendance *handler.AttendanceHandler
	Health     *handler.HealthHandler
}

func SetupRoutes(
	r chi.Router,
	h Handlers,
	auth *middleware.AuthMiddleware,
	limiter middleware.RateStore,
	verifier middleware.VerificationConsumer,
) chi.Router {
	// ---- Global Middleware ----
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   append([]string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"}, middleware.FaceTokenHeaders...),
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: false, // must be false when using "*"
		MaxAge:           300,
	}))

	r.Get("/health", h.Health.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ============================================================
	// Protected Endpoints (require auth)
	// ============================================================
	r.Route("/api/v1/biometrics", func(br chi.Router) {
		br.Use(auth.Require)

		br.With(middleware.RateLimiter(limiter, 20, 5*time.Minute, 5*time.Minute, "biometrics")).
			Post("/challenge", h.Biometric.CreateChallenge)
		br.Post("/enroll", h.Biometric.Enroll)
		br.Post("/verify", h.Biometric.Verify)
		br.Get("/status", h.Biometric.Status)
		br.Get("/events", h.Biometric.Events)
		br.Delete("/template", h.Biometric.ResetTemplate)
	})

	r.Route("/api/v1/attendance", func(ar chi.Router) {
		ar.Use(auth.Require)
		ar.With(middleware.RequireFaceVerification(verifier, handler.PunchRequiresProof)).
			Post("/punch", h.Attendance.Punch)
	})

	return r
}
