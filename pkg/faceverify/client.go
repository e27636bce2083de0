package faceverify

import (
	"context"
	"fmt"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/xerrors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const defaultCallTimeout = 3 * time.Second

// Client redeems tokens against a remote biometrics service. It satisfies
// middleware.VerificationConsumer, so another service's router can mount
// RequireFaceVerification with it.
type Client struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn, timeout: defaultCallTimeout}
}

// Dial connects to addr without transport security, the way the other
// internal service clients do.
func Dial(addr string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial biometrics %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

// Consume maps remote outcomes back onto the shared sentinels. Transport
// failures come back as ErrVerificationUnavailable so callers fail closed.
func (c *Client) Consume(ctx context.Context, userID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out := new(emptypb.Empty)
	err := c.conn.Invoke(ctx, ConsumeVerificationFullMethod, NewConsumeRequest(userID, token), out)
	if err == nil {
		return nil
	}

	switch status.Code(err) {
	case codes.InvalidArgument:
		return xerrors.ErrVerificationRequired
	case codes.PermissionDenied:
		return xerrors.ErrVerificationInvalid
	case codes.FailedPrecondition:
		return xerrors.ErrVerificationUnavailable
	default:
		return fmt.Errorf("%w: %v", xerrors.ErrVerificationUnavailable, err)
	}
}
