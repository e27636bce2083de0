package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/middleware"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/response"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"go.uber.org/zap"
)

const (
	PunchIn  = "in"
	PunchOut = "out"
)

type punchRequest struct {
	Type string `json:"type"`
}

type punchResponse struct {
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	PunchedAt time.Time `json:"punchedAt"`
}

// AttendanceHandler accepts clock-in/out punches. Clock-in is mounted
// behind middleware.RequireFaceVerification.
type AttendanceHandler struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewAttendanceHandler(logger *zap.Logger) *AttendanceHandler {
	return &AttendanceHandler{logger: logger, now: time.Now}
}

// PunchRequiresProof reads the punch type from the body and restores it for
// the next handler. Only clock-in needs a face verification token.
func PunchRequiresProof(r *http.Request) (bool, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, smallBodyLimit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return false, xerrors.ErrPayloadTooLarge
		}
		return false, xerrors.BadRequest("Invalid request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var req punchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return false, xerrors.BadRequest("Invalid request body")
	}
	return normalizePunch(req.Type) == PunchIn, nil
}

func normalizePunch(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// Punch POST /api/v1/attendance/punch
func (h *AttendanceHandler) Punch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, xerrors.ErrUnauthorized.Error())
		return
	}

	var req punchRequest
	if err := decodeJSON(w, r, smallBodyLimit, &req); err != nil {
		response.Fail(w, err)
		return
	}
	kind := normalizePunch(req.Type)
	if kind != PunchIn && kind != PunchOut {
		response.Error(w, http.StatusBadRequest, "type must be in or out")
		return
	}

	at := h.now().UTC()
	h.logger.Info("attendance punch",
		zap.String("user_id", userID),
		zap.String("type", kind),
		zap.Time("punched_at", at))

	response.JSON(w, http.StatusOK, punchResponse{UserID: userID, Type: kind, PunchedAt: at})
}
