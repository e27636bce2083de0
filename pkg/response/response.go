package response

import (
	"encoding/json"
	"net/http"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Status: "success",
		Data:   data,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func Error(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Status:  "error",
		Message: msg,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Fail writes err using the status that matches its xerrors.Kind. Causes of
// internal errors are never written to the client.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), xerrors.Message(err))
}

func StatusFor(err error) int {
	switch xerrors.KindOf(err) {
	case xerrors.KindBadRequest:
		return http.StatusBadRequest
	case xerrors.KindNotFound:
		return http.StatusNotFound
	case xerrors.KindForbidden:
		return http.StatusForbidden
	case xerrors.KindConflict:
		return http.StatusConflict
	case xerrors.KindRateLimited:
		return http.StatusTooManyRequests
	case xerrors.KindBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
