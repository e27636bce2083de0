package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/response"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Header names accepted for the face verification token, in lookup order.
var FaceTokenHeaders = []string{"X-Face-Verification", "X-Biometric-Token"}

var faceGuardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "biometrics_guard_decisions_total",
	Help: "Face verification guard decisions by outcome.",
}, []string{"outcome"})

// VerificationConsumer redeems a single-use face verification token for userID.
type VerificationConsumer interface {
	Consume(ctx context.Context, userID, token string) error
}

// ProofRequirement reports whether r performs an action that needs a face
// verification token. An error is answered with 400.
type ProofRequirement func(r *http.Request) (bool, error)

func FaceTokenFromRequest(r *http.Request) string {
	for _, h := range FaceTokenHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return ""
}

// RequireFaceVerification must be mounted after Require so the caller's
// identity comes from the session, never from the request body.
func RequireFaceVerification(consumer VerificationConsumer, requires ProofRequirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			needed, err := requires(r)
			if err != nil {
				response.Fail(w, err)
				return
			}
			if !needed {
				faceGuardDecisions.WithLabelValues("skipped").Inc()
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := GetUserID(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, xerrors.ErrUnauthorized.Error())
				return
			}

			token := FaceTokenFromRequest(r)
			if token == "" {
				faceGuardDecisions.WithLabelValues("missing").Inc()
				response.Fail(w, xerrors.ErrVerificationRequired)
				return
			}

			if err := consumer.Consume(r.Context(), userID, token); err != nil {
				switch {
				case errors.Is(err, xerrors.ErrVerificationUnavailable),
					errors.Is(err, xerrors.ErrSecretNotConfigured):
					faceGuardDecisions.WithLabelValues("unavailable").Inc()
					response.Fail(w, xerrors.ErrVerificationUnavailable)
				case errors.Is(err, xerrors.ErrVerificationInvalid):
					faceGuardDecisions.WithLabelValues("rejected").Inc()
					response.Fail(w, xerrors.ErrVerificationInvalid)
				default:
					// storage failure: fail closed
					faceGuardDecisions.WithLabelValues("error").Inc()
					response.Fail(w, xerrors.ErrVerificationUnavailable)
				}
				return
			}

			faceGuardDecisions.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
