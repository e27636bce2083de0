package usecase

import (
	"context"
	"errors"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/config"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/security"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/service"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"go.uber.org/zap"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 100
)

// Analyzer scores captured frames. Implemented by analysis.Client.
type Analyzer interface {
	Analyze(ctx context.Context, frames []string, actions []string) (*domain.AnalysisResult, error)
}

// RequestMeta is caller information recorded alongside challenges and events.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// CaptureRequest is the enroll/verify body.
type CaptureRequest struct {
	Payload     security.Envelope `json:"payload"`
	ChallengeID string            `json:"challengeId"`
	Nonce       string            `json:"nonce"`
}

type BiometricUsecase struct {
	cfg        config.BiometricsConfig
	challenges *service.ChallengeService
	templates  *service.TemplateService
	lockout    *service.LockoutPolicy
	tokens     *service.TokenService
	recorder   *service.EventRecorder
	codec      security.PayloadCodec
	analyzer   Analyzer
	logger     *zap.Logger
}

type Deps struct {
	Challenges *service.ChallengeService
	Templates  *service.TemplateService
	Lockout    *service.LockoutPolicy
	Tokens     *service.TokenService
	Recorder   *service.EventRecorder
	Codec      security.PayloadCodec
	Analyzer   Analyzer
}

func NewBiometricUsecase(cfg config.BiometricsConfig, deps Deps, logger *zap.Logger) *BiometricUsecase {
	return &BiometricUsecase{
		cfg:        cfg,
		challenges: deps.Challenges,
		templates:  deps.Templates,
		lockout:    deps.Lockout,
		tokens:     deps.Tokens,
		recorder:   deps.Recorder,
		codec:      deps.Codec,
		analyzer:   deps.Analyzer,
		logger:     logger,
	}
}

// CreateChallenge issues a challenge unless the identity is locked out.
func (uc *BiometricUsecase) CreateChallenge(ctx context.Context, userID string, action domain.Action, meta RequestMeta) (*domain.ChallengeResponse, error) {
	if !action.Valid() {
		return nil, xerrors.ErrInvalidAction
	}
	if err := uc.checkLockout(ctx, userID); err != nil {
		return nil, err
	}

	c, err := uc.challenges.Issue(ctx, userID, action, meta.IP, meta.UserAgent)
	if err != nil {
		uc.logger.Error("failed to issue challenge", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	challengesIssued.WithLabelValues(string(action)).Inc()

	uc.logger.Info("biometric challenge issued",
		zap.String("user_id", userID),
		zap.String("challenge_id", c.ID),
		zap.String("action", string(action)),
		zap.Strings("liveness_actions", c.LivenessActions))

	return &domain.ChallengeResponse{
		ChallengeID:     c.ID,
		Nonce:           c.Nonce,
		ExpiresAt:       c.ExpiresAt,
		LivenessActions: c.LivenessActions,
		PublicKey:       uc.codec.PublicKey(),
		KeyType:         domain.KeyTypeBiometrics,
		Version:         uc.codec.KeyVersion(),
	}, nil
}

type capture struct {
	challenge *domain.Challenge
	frames    []string
	metadata  map[string]any
}

// openCapture runs the checks shared by enroll and verify, in order:
// lockout, key type, challenge consumption, decryption, frame validation.
func (uc *BiometricUsecase) openCapture(ctx context.Context, userID string, action domain.Action, req CaptureRequest) (*capture, error) {
	if err := uc.checkLockout(ctx, userID); err != nil {
		return nil, err
	}
	if req.Payload.KeyType != domain.KeyTypeBiometrics {
		return nil, xerrors.ErrInvalidKeyType
	}
	if req.ChallengeID == "" || req.Nonce == "" {
		return nil, xerrors.BadRequest("challengeId and nonce are required")
	}
	if action == domain.ActionVerify && !uc.tokens.Configured() {
		return nil, xerrors.ErrSecretNotConfigured
	}

	ch, err := uc.challenges.Consume(ctx, userID, req.ChallengeID, req.Nonce, action)
	if err != nil {
		uc.logger.Info("challenge rejected",
			zap.String("user_id", userID),
			zap.String("challenge_id", req.ChallengeID),
			zap.String("reason", xerrors.Message(err)))
		return nil, err
	}

	plaintext, err := uc.codec.DecryptHybrid(req.Payload)
	if err != nil {
		uc.logger.Warn("capture payload decryption failed",
			zap.String("user_id", userID),
			zap.String("challenge_id", ch.ID),
			zap.Error(err))
		return nil, xerrors.ErrDecryptionFailed
	}

	payload, err := service.ParseCapture(plaintext)
	if err != nil {
		return nil, err
	}

	frames, err := service.ValidateFrames(payload.Frames, service.FrameLimits{
		MinFrames:       uc.cfg.MinFrames,
		MaxFrames:       uc.cfg.MaxFrames,
		MaxPayloadBytes: uc.cfg.MaxPayloadBytes,
	})
	if err != nil {
		return nil, err
	}

	return &capture{challenge: ch, frames: frames, metadata: payload.Metadata}, nil
}

// Enroll adds a live capture to the caller's face template.
func (uc *BiometricUsecase) Enroll(ctx context.Context, userID string, req CaptureRequest, meta RequestMeta) (*domain.EnrollResponse, error) {
	cp, err := uc.openCapture(ctx, userID, domain.ActionEnroll, req)
	if err != nil {
		return nil, err
	}

	result, err := uc.analyzer.Analyze(ctx, cp.frames, cp.challenge.LivenessActions)
	if err != nil {
		return nil, err
	}

	if err := uc.checkTrust(ctx, userID, domain.ActionEnroll, cp, result, meta); err != nil {
		return nil, err
	}

	tpl, err := uc.templates.SaveEmbeddings(ctx, userID, result.Embeddings, result.EmbeddingDim, confidenceOf(result))
	if err != nil {
		if errors.Is(err, xerrors.ErrTemplateConflict) {
			templateConflicts.Inc()
		}
		uc.logger.Warn("failed to save face template", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	md := uc.eventMetadata(cp, result)
	md["templateCount"] = tpl.TemplateCount
	if _, err := uc.recorder.Record(ctx, &domain.RecognitionEvent{
		UserID:    userID,
		Type:      domain.ActionEnroll,
		Result:    domain.ResultSuccess,
		Metadata:  md,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		return nil, err
	}

	return &domain.EnrollResponse{OK: true, TemplateCount: tpl.TemplateCount, EmbeddingDim: tpl.EmbeddingDim}, nil
}

// Verify matches a live capture against the caller's template and, on
// success, returns a single-use verification token.
func (uc *BiometricUsecase) Verify(ctx context.Context, userID string, req CaptureRequest, meta RequestMeta) (*domain.VerifyResponse, error) {
	cp, err := uc.openCapture(ctx, userID, domain.ActionVerify, req)
	if err != nil {
		return nil, err
	}

	tpl, err := uc.templates.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, err := uc.analyzer.Analyze(ctx, cp.frames, cp.challenge.LivenessActions)
	if err != nil {
		return nil, err
	}

	if err := uc.checkTrust(ctx, userID, domain.ActionVerify, cp, result, meta); err != nil {
		return nil, err
	}

	if len(result.Embeddings) == 0 {
		return nil, xerrors.ErrNoEmbeddings
	}
	for _, e := range result.Embeddings {
		if len(e) != tpl.EmbeddingDim {
			return nil, xerrors.ErrDimensionMismatch
		}
	}

	samples := service.NormalizeAll(result.Embeddings)
	score := service.BestScore(samples, tpl.Centroid, tpl.Embeddings)
	threshold := uc.cfg.MatchThreshold
	verifyScores.Observe(score)

	md := uc.eventMetadata(cp, result)
	if score < threshold {
		if _, err := uc.recorder.Record(ctx, &domain.RecognitionEvent{
			UserID:    userID,
			Type:      domain.ActionVerify,
			Result:    domain.ResultFailure,
			Reason:    xerrors.ErrVerificationFailed.Msg,
			Score:     &score,
			Threshold: &threshold,
			Metadata:  md,
			IPAddress: meta.IP,
			UserAgent: meta.UserAgent,
		}); err != nil {
			return nil, err
		}
		return nil, xerrors.ErrVerificationFailed
	}

	token, err := uc.tokens.Issue()
	if err != nil {
		return nil, err
	}

	updated := false
	if score >= uc.cfg.UpdateThreshold && !result.Spoof.Suspicious {
		if _, err := uc.templates.Append(ctx, userID, tpl, result.Embeddings, tpl.EmbeddingDim, confidenceOf(result)); err != nil {
			if errors.Is(err, xerrors.ErrTemplateConflict) {
				templateConflicts.Inc()
			}
			// verification already succeeded; a skipped refresh is not fatal
			uc.logger.Warn("adaptive template update skipped", zap.String("user_id", userID), zap.Error(err))
		} else {
			updated = true
		}
	}
	md["templateUpdated"] = updated

	if _, err := uc.recorder.Record(ctx, &domain.RecognitionEvent{
		UserID:                userID,
		Type:                  domain.ActionVerify,
		Result:                domain.ResultSuccess,
		Score:                 &score,
		Threshold:             &threshold,
		VerificationTokenHash: &token.Hash,
		VerificationExpiresAt: &token.ExpiresAt,
		Metadata:              md,
		IPAddress:             meta.IP,
		UserAgent:             meta.UserAgent,
	}); err != nil {
		return nil, err
	}

	return &domain.VerifyResponse{
		OK:                true,
		VerificationToken: token.Raw,
		ExpiresAt:         token.ExpiresAt,
		Score:             score,
	}, nil
}

// checkTrust records and rejects captures that fail liveness or look spoofed.
func (uc *BiometricUsecase) checkTrust(ctx context.Context, userID string, action domain.Action, cp *capture, result *domain.AnalysisResult, meta RequestMeta) error {
	var (
		res    domain.Result
		reason string
		reject error
	)
	switch {
	case !result.Liveness.Passed:
		res, reason, reject = domain.ResultFailure, xerrors.ErrLivenessFailed.Msg, xerrors.ErrLivenessFailed
	case result.Spoof.Suspicious:
		res, reason, reject = domain.ResultSuspicious, result.Spoof.SpoofReason(), xerrors.ErrSpoofSuspected
	default:
		return nil
	}

	if _, err := uc.recorder.Record(ctx, &domain.RecognitionEvent{
		UserID:    userID,
		Type:      action,
		Result:    res,
		Reason:    reason,
		Metadata:  uc.eventMetadata(cp, result),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		return err
	}
	return reject
}

func (uc *BiometricUsecase) checkLockout(ctx context.Context, userID string) error {
	err := uc.lockout.Check(ctx, userID)
	if err != nil && xerrors.KindOf(err) == xerrors.KindRateLimited {
		lockoutRejections.Inc()
		uc.logger.Info("identity locked out", zap.String("user_id", userID))
	}
	return err
}

func (uc *BiometricUsecase) eventMetadata(cp *capture, result *domain.AnalysisResult) map[string]any {
	md := result.Metadata()
	md["challengeId"] = cp.challenge.ID
	md["livenessActions"] = cp.challenge.LivenessActions
	md["frames"] = len(cp.frames)
	if len(cp.metadata) > 0 {
		md["client"] = cp.metadata
	}
	return md
}

func confidenceOf(result *domain.AnalysisResult) *float64 {
	if result.Quality.AvgConfidence <= 0 {
		return nil
	}
	c := result.Quality.AvgConfidence
	return &c
}

// Status reports the caller's enrolment and lockout state.
func (uc *BiometricUsecase) Status(ctx context.Context, userID string) (*domain.StatusResponse, error) {
	resp := &domain.StatusResponse{}

	tpl, err := uc.templates.Get(ctx, userID)
	switch {
	case err == nil:
		updatedAt := tpl.UpdatedAt
		resp.Enrolled = true
		resp.TemplateCount = tpl.TemplateCount
		resp.EmbeddingDim = tpl.EmbeddingDim
		resp.LastConfidence = tpl.LastConfidence
		resp.UpdatedAt = &updatedAt
	case errors.Is(err, xerrors.ErrTemplateNotFound):
	default:
		return nil, err
	}

	until, err := uc.lockout.LockedUntil(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp.LockedUntil = until
	return resp, nil
}

// Events lists the caller's most recent recognition events.
func (uc *BiometricUsecase) Events(ctx context.Context, userID string, limit int) ([]*domain.RecognitionEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	return uc.recorder.Recent(ctx, userID, limit)
}

// ResetTemplate deletes the caller's enrolment.
func (uc *BiometricUsecase) ResetTemplate(ctx context.Context, userID string) error {
	removed, err := uc.templates.Reset(ctx, userID)
	if err != nil {
		return err
	}
	if !removed {
		return xerrors.ErrTemplateNotFound
	}
	uc.logger.Info("face template reset", zap.String("user_id", userID))
	return nil
}

// ConsumeVerification redeems a verification token for the guard.
func (uc *BiometricUsecase) ConsumeVerification(ctx context.Context, userID, token string) error {
	return uc.tokens.Consume(ctx, userID, token)
}
