// Package faceverify is the gRPC contract for redeeming face verification
// tokens from services that do not share the biometrics database.
//
// Messages are protobuf well-known types so no generated code is needed:
// the request is a google.protobuf.Struct with string fields "user_id" and
// "token", the reply is google.protobuf.Empty. Outcomes travel as status codes.
package faceverify

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName                   = "biometrics.v1.FaceVerification"
	ConsumeVerificationFullMethod = "/" + ServiceName + "/ConsumeVerification"
	FieldUserID                   = "user_id"
	FieldToken                    = "token"
)

// FaceVerificationServer is implemented by the biometrics service.
type FaceVerificationServer interface {
	ConsumeVerification(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

func RegisterFaceVerificationServer(s grpc.ServiceRegistrar, srv FaceVerificationServer) {
	s.RegisterService(&FaceVerification_ServiceDesc, srv)
}

func _FaceVerification_ConsumeVerification_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FaceVerificationServer).ConsumeVerification(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ConsumeVerificationFullMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FaceVerificationServer).ConsumeVerification(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var FaceVerification_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FaceVerificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ConsumeVerification",
			Handler:    _FaceVerification_ConsumeVerification_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "biometrics/v1/face_verification.proto",
}

// NewConsumeRequest builds the ConsumeVerification request message.
func NewConsumeRequest(userID, token string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldUserID: structpb.NewStringValue(userID),
		FieldToken:  structpb.NewStringValue(token),
	}}
}

// ParseConsumeRequest extracts user id and token. Non-string fields read as empty.
func ParseConsumeRequest(req *structpb.Struct) (userID, token string) {
	f := req.GetFields()
	return f[FieldUserID].GetStringValue(), f[FieldToken].GetStringValue()
}

// Unimplemented is embedded by servers that register before wiring a backend.
type Unimplemented struct{}

func (Unimplemented) ConsumeVerification(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method ConsumeVerification not implemented")
}
