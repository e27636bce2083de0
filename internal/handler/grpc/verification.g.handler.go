package hgrpc

import (
	"context"
	"errors"
	"strings"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/faceverify"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// VerificationRedeemer is satisfied by usecase.BiometricUsecase.
type VerificationRedeemer interface {
	ConsumeVerification(ctx context.Context, userID, token string) error
}

type VerificationGRPCHandler struct {
	uc     VerificationRedeemer
	logger *zap.Logger
}

func NewVerificationGRPCHandler(uc VerificationRedeemer, logger *zap.Logger) *VerificationGRPCHandler {
	return &VerificationGRPCHandler{uc: uc, logger: logger}
}

var _ faceverify.FaceVerificationServer = (*VerificationGRPCHandler)(nil)

// ConsumeVerification redeems a token on behalf of a downstream guard.
func (h *VerificationGRPCHandler) ConsumeVerification(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	userID, token := faceverify.ParseConsumeRequest(req)
	if strings.TrimSpace(userID) == "" {
		return nil, status.Error(codes.Unauthenticated, "user_id is required")
	}

	err := h.uc.ConsumeVerification(ctx, userID, token)
	switch {
	case err == nil:
		return &emptypb.Empty{}, nil
	case errors.Is(err, xerrors.ErrVerificationRequired):
		return nil, status.Error(codes.InvalidArgument, xerrors.ErrVerificationRequired.Msg)
	case errors.Is(err, xerrors.ErrVerificationInvalid):
		return nil, status.Error(codes.PermissionDenied, xerrors.ErrVerificationInvalid.Msg)
	case errors.Is(err, xerrors.ErrVerificationUnavailable), errors.Is(err, xerrors.ErrSecretNotConfigured):
		return nil, status.Error(codes.FailedPrecondition, xerrors.ErrVerificationUnavailable.Msg)
	default:
		h.logger.Error("grpc consume verification failed", zap.String("user_id", userID), zap.Error(err))
		return nil, status.Error(codes.Internal, "internal error")
	}
}
