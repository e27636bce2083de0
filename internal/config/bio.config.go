package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	AppEnv      string
	StoreDriver string // "postgres" or "memory"

	RedisAddr string
	RedisPass string

	KafkaBrokers []string
	KafkaTopic   string

	JWTPublicKeyPath string
	JWTIssuer        string
	JWTAudience      string
	JWTRotatedKeys   map[string]string

	Biometrics BiometricsConfig
}

// LivenessOverride replaces the default liveness action selection when Set.
// An empty Actions with Set true means no liveness actions.
type LivenessOverride struct {
	Actions []string
	Set     bool
}

type BiometricsConfig struct {
	MinFrames       int
	MaxFrames       int
	MaxPayloadBytes int

	ChallengeTTL    time.Duration
	VerificationTTL time.Duration

	MaxTemplateCount int
	MatchThreshold   float64
	UpdateThreshold  float64

	AttemptWindow   time.Duration
	MaxAttempts     int
	LockoutDuration time.Duration

	EnrollLiveness LivenessOverride
	VerifyLiveness LivenessOverride

	FaceVerificationSecret string
	TemplateKey            string
	RSAPrivateKeyPath      string
	ServiceURL             string
	AnalysisTimeout        time.Duration
}

func DefaultBiometrics() BiometricsConfig {
	return BiometricsConfig{
		MinFrames:        4,
		MaxFrames:        8,
		MaxPayloadBytes:  3_000_000,
		ChallengeTTL:     120 * time.Second,
		VerificationTTL:  120 * time.Second,
		MaxTemplateCount: 10,
		MatchThreshold:   0.85,
		UpdateThreshold:  0.92,
		AttemptWindow:    600 * time.Second,
		MaxAttempts:      5,
		LockoutDuration:  15 * time.Minute,
		ServiceURL:       "http://biometrics-analyzer:8000",
		AnalysisTimeout:  30 * time.Second,
	}
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("BIOMETRICS: No .env file found, relying on system env vars")
	}

	def := DefaultBiometrics()

	return Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8040"),
		GRPCAddr:    getEnv("GRPC_ADDR", ":8041"),
		AppEnv:      getEnv("APP_ENV", "production"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),

		RedisAddr: getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass: getEnv("REDIS_PASS", ""),

		KafkaBrokers: parseCSVEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "biometrics.recognition"),

		JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", "/app/keys/jwt_public.pem"),
		JWTIssuer:        getEnv("JWT_ISSUER", ""),
		JWTAudience:      getEnv("JWT_AUDIENCE", ""),
		JWTRotatedKeys:   parseKeyMapEnv("JWT_ROTATED_KEYS"),

		Biometrics: BiometricsConfig{
			MinFrames:       atoiOrDefault(os.Getenv("BIOMETRICS_MIN_FRAMES"), def.MinFrames),
			MaxFrames:       atoiOrDefault(os.Getenv("BIOMETRICS_MAX_FRAMES"), def.MaxFrames),
			MaxPayloadBytes: atoiOrDefault(os.Getenv("BIOMETRICS_MAX_PAYLOAD_BYTES"), def.MaxPayloadBytes),

			ChallengeTTL:    getEnvAsDuration("BIOMETRICS_CHALLENGE_TTL_SECONDS", def.ChallengeTTL),
			VerificationTTL: getEnvAsDuration("BIOMETRICS_VERIFICATION_TTL_SECONDS", def.VerificationTTL),

			MaxTemplateCount: atoiOrDefault(os.Getenv("BIOMETRICS_MAX_TEMPLATE_COUNT"), def.MaxTemplateCount),
			MatchThreshold:   getEnvAsFloat("BIOMETRICS_MATCH_THRESHOLD", def.MatchThreshold),
			UpdateThreshold:  getEnvAsFloat("BIOMETRICS_UPDATE_THRESHOLD", def.UpdateThreshold),

			AttemptWindow:   getEnvAsDuration("BIOMETRICS_ATTEMPT_WINDOW_SECONDS", def.AttemptWindow),
			MaxAttempts:     getEnvAsInt("BIOMETRICS_MAX_ATTEMPTS", def.MaxAttempts),
			LockoutDuration: getEnvAsDuration("BIOMETRICS_LOCKOUT_SECONDS", def.LockoutDuration),

			EnrollLiveness: parseLivenessEnv("BIOMETRICS_ENROLL_LIVENESS_ACTIONS"),
			VerifyLiveness: parseLivenessEnv("BIOMETRICS_VERIFY_LIVENESS_ACTIONS"),

			FaceVerificationSecret: os.Getenv("FACE_VERIFICATION_SECRET"),
			TemplateKey:            os.Getenv("BIOMETRICS_TEMPLATE_KEY"),
			RSAPrivateKeyPath:      getEnv("BIOMETRICS_RSA_PRIVATE_KEY_PATH", ""),
			ServiceURL:             strings.TrimRight(getEnv("BIOMETRICS_SERVICE_URL", def.ServiceURL), "/"),
			AnalysisTimeout:        getEnvAsDuration("BIOMETRICS_ANALYSIS_TIMEOUT_SECONDS", def.AnalysisTimeout),
		},
	}
}

func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// Validate rejects settings that would make the protocol unusable.
// A missing FACE_VERIFICATION_SECRET is not an error here: verification then
// fails closed per request.
func (b BiometricsConfig) Validate() error {
	var errs []error
	if b.MinFrames <= 0 || b.MaxFrames < b.MinFrames {
		errs = append(errs, fmt.Errorf("frame bounds invalid: min=%d max=%d", b.MinFrames, b.MaxFrames))
	}
	if b.MaxPayloadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max payload bytes must be positive"))
	}
	if b.ChallengeTTL <= 0 || b.VerificationTTL <= 0 {
		errs = append(errs, fmt.Errorf("challenge and verification ttl must be positive"))
	}
	if b.MaxTemplateCount <= 0 {
		errs = append(errs, fmt.Errorf("max template count must be positive"))
	}
	if b.MatchThreshold < 0 || b.MatchThreshold > 1 || b.UpdateThreshold < 0 || b.UpdateThreshold > 1 {
		errs = append(errs, fmt.Errorf("thresholds must be within [0,1]"))
	}
	if b.UpdateThreshold < b.MatchThreshold {
		errs = append(errs, fmt.Errorf("update threshold %.2f below match threshold %.2f", b.UpdateThreshold, b.MatchThreshold))
	}
	if b.AttemptWindow <= 0 {
		errs = append(errs, fmt.Errorf("attempt window must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func atoiOrDefault(s string, def int) int {
	var i int
	_, err := fmt.Sscanf(s, "%d", &i)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

// getEnvAsInt allows zero and negative values, which switch lockout off.
func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvAsDuration accepts whole seconds ("120") or a Go duration ("2m").
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func parseCSVEnv(key, fallback string) []string {
	val := getEnv(key, fallback)
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLivenessEnv(key string) LivenessOverride {
	raw, ok := os.LookupEnv(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return LivenessOverride{}
	}
	if strings.EqualFold(raw, "none") {
		return LivenessOverride{Actions: []string{}, Set: true}
	}
	actions := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			actions = append(actions, p)
		}
	}
	return LivenessOverride{Actions: actions, Set: true}
}

// parseKeyMapEnv reads "kid=path,kid2=path2". Entries without "=" are dropped.
func parseKeyMapEnv(key string) map[string]string {
	out := map[string]string{}
	for _, entry := range parseCSVEnv(key, "") {
		kid, path, ok := strings.Cut(entry, "=")
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			continue
		}
		out[kid] = path
	}
	return out
}
