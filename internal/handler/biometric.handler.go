package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/usecase"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/middleware"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/response"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"go.uber.org/zap"
)

const smallBodyLimit = 4 << 10

// BiometricHandler exposes the challenge, enroll and verify flows over HTTP.
type BiometricHandler struct {
	uc           *usecase.BiometricUsecase
	logger       *zap.Logger
	captureLimit int64
}

// NewBiometricHandler caps capture bodies at captureLimit bytes. The
// envelope is base64 so it should leave room above the frame budget.
func NewBiometricHandler(uc *usecase.BiometricUsecase, captureLimit int64, logger *zap.Logger) *BiometricHandler {
	return &BiometricHandler{uc: uc, logger: logger, captureLimit: captureLimit}
}

type challengeRequest struct {
	Action string `json:"action"`
}

// CreateChallenge POST /api/v1/biometrics/challenge
func (h *BiometricHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, xerrors.ErrUnauthorized.Error())
		return
	}

	var req challengeRequest
	if err := decodeJSON(w, r, smallBodyLimit, &req); err != nil {
		response.Fail(w, err)
		return
	}
	action := domain.Action(strings.ToUpper(strings.TrimSpace(req.Action)))

	ch, err := h.uc.CreateChallenge(r.Context(), userID, action, requestMeta(r))
	if err != nil {
		h.fail(w, "create challenge", userID, err)
		return
	}
	response.JSON(w, http.StatusCreated, ch)
}

// Enroll POST /api/v1/biometrics/enroll
func (h *BiometricHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, xerrors.ErrUnauthorized.Error())
		return
	}

	var req usecase.CaptureRequest
	if err := decodeJSON(w, r, h.captureLimit, &req); err != nil {
		response.Fail(w, err)
		return
	}

	resp, err := h.uc.Enroll(r.Context(), userID, req, requestMeta(r))
	if err != nil {
		h.fail(w, "enroll", userID, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

// Verify POST /api/v1/biometrics/verify
func (h *BiometricHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, xerrors.ErrUnauthorized.Error())
		return
	}

	var req usecase.CaptureRequest
	if err := decodeJSON(w, r, h.captureLimit, &req); err != nil {
		response.Fail(w, err)
		return
	}

	resp, err := h.uc.Verify(r.Context(), userID, req, requestMeta(r))
	if err != nil {
		h.fail(w, "verify", userID, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

// Status GET /api/v1/biometrics/status
func (h *BiometricHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, xerrors.ErrUnauthorized.Error())
		return
	}

	st, err := h.uc.Status(r.Context(), userID)
	if err != nil {
		h.fail(w, "status", userID, err)
		return
	}
	response.JSON(w, http.StatusOK, st)
}

// Events GET /api/v1/biometrics/events?limit=
func (h *BiometricHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, xerrors.ErrUnauthorized.Error())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	events, err := h.uc.Events(r.Context(), userID, limit)
	if err != nil {
		h.fail(w, "list events", userID, err)
		return
	}
	if events == nil {
		events = []*domain.RecognitionEvent{}
	}
	response.JSON(w, http.StatusOK, events)
}

// ResetTemplate DELETE /api/v1/biometrics/template
func (h *BiometricHandler) ResetTemplate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, xerrors.ErrUnauthorized.Error())
		return
	}

	if err := h.uc.ResetTemplate(r.Context(), userID); err != nil {
		h.fail(w, "reset template", userID, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *BiometricHandler) fail(w http.ResponseWriter, op, userID string, err error) {
	if xerrors.KindOf(err) == xerrors.KindInternal {
		h.logger.Error(op+" failed", zap.String("user_id", userID), zap.Error(err))
	}
	response.Fail(w, err)
}
