package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an AppError so the HTTP layer can pick a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindForbidden
	KindConflict
	KindRateLimited
	KindBadGateway
)

// AppError carries a client-safe message plus the underlying cause.
type AppError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *AppError) Unwrap() error { return e.Err }

func New(kind Kind, msg string, cause error) *AppError {
	return &AppError{Kind: kind, Msg: msg, Err: cause}
}

func BadRequest(msg string) *AppError  { return &AppError{Kind: KindBadRequest, Msg: msg} }
func NotFound(msg string) *AppError    { return &AppError{Kind: KindNotFound, Msg: msg} }
func Forbidden(msg string) *AppError   { return &AppError{Kind: KindForbidden, Msg: msg} }
func Conflict(msg string) *AppError    { return &AppError{Kind: KindConflict, Msg: msg} }
func RateLimited(msg string) *AppError { return &AppError{Kind: KindRateLimited, Msg: msg} }
func BadGateway(msg string, cause error) *AppError {
	return &AppError{Kind: KindBadGateway, Msg: msg, Err: cause}
}

// KindOf returns the Kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Message returns the client-safe message of err, hiding internal causes.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Msg
	}
	return ErrInternalServer.Error()
}

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// Generic
var (
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Payload / capture input
var (
	ErrInvalidKeyType       = BadRequest("Invalid key type")
	ErrInvalidPayloadFormat = BadRequest("Invalid payload format")
	ErrDecryptionFailed     = BadRequest("Unable to decrypt payload")
	ErrFramesNotArray       = BadRequest("Frames must be an array")
	ErrInvalidFrameCount    = BadRequest("Invalid frame count")
	ErrInvalidFrame         = BadRequest("Invalid frame data")
	ErrPayloadTooLarge      = BadRequest("Payload too large")
	ErrNoEmbeddings         = BadRequest("No embeddings provided")
	ErrDimensionMismatch    = BadRequest("Embedding dimension mismatch")
	ErrInvalidAction        = BadRequest("Invalid biometric action")
)

// Challenge
var (
	ErrChallengeNotFound = NotFound("Challenge not found")
	ErrChallengeUsed     = BadRequest("Challenge already used")
	ErrChallengeExpired  = BadRequest("Challenge expired")
	ErrInvalidNonce      = BadRequest("Invalid challenge nonce")
)

// Template
var (
	ErrTemplateNotFound = BadRequest("Face not enrolled")
	ErrTemplateConflict = Conflict("Face template was modified concurrently")
)

// Trust decisions
var (
	ErrLivenessFailed     = Forbidden("Liveness check failed")
	ErrSpoofSuspected     = Forbidden("Spoof suspected")
	ErrVerificationFailed = Forbidden("Face verification failed")
)

// Verification token
var (
	ErrSecretNotConfigured     = BadRequest("Verification secret not configured")
	ErrVerificationRequired    = Forbidden("Face verification required")
	ErrVerificationInvalid     = Forbidden("Face verification invalid or expired")
	ErrVerificationUnavailable = Forbidden("Face verification unavailable")
)

// Upstream
var (
	ErrAnalysisUnavailable = BadGateway("Biometrics service unavailable", nil)
)
