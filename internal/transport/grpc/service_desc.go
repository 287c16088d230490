package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and responses are
// google.protobuf.Struct messages, so any protobuf-aware client can call it without
// generated stubs.
const ServiceName = "sessionbook.v1.SessionsService"

const (
	MethodBookSession     = "BookSession"
	MethodConfirmSession  = "ConfirmSession"
	MethodCancelSession   = "CancelSession"
	MethodCompleteSession = "CompleteSession"
	MethodMarkNoShow      = "MarkNoShow"
	MethodGetSession      = "GetSession"
	MethodGetOpenSlots    = "GetOpenSlots"
	MethodSpawnFollowUp   = "SpawnFollowUp"
	MethodConfirmPayment  = "ConfirmPayment"
)

// FullMethod returns the path a client invokes for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// SessionsServiceServer is the server API for SessionsService.
type SessionsServiceServer interface {
	BookSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkNoShow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOpenSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SpawnFollowUp(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterSessionsServiceServer(s grpc.ServiceRegistrar, srv SessionsServiceServer) {
	s.RegisterService(&sessionsServiceDesc, srv)
}

type unaryMethod func(srv SessionsServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(SessionsServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var sessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodBookSession, SessionsServiceServer.BookSession),
		unaryHandler(MethodConfirmSession, SessionsServiceServer.ConfirmSession),
		unaryHandler(MethodCancelSession, SessionsServiceServer.CancelSession),
		unaryHandler(MethodCompleteSession, SessionsServiceServer.CompleteSession),
		unaryHandler(MethodMarkNoShow, SessionsServiceServer.MarkNoShow),
		unaryHandler(MethodGetSession, SessionsServiceServer.GetSession),
		unaryHandler(MethodGetOpenSlots, SessionsServiceServer.GetOpenSlots),
		unaryHandler(MethodSpawnFollowUp, SessionsServiceServer.SpawnFollowUp),
		unaryHandler(MethodConfirmPayment, SessionsServiceServer.ConfirmPayment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sessionbook/v1/sessions.proto",
}

// RequestTimeoutInterceptor applies timeout to calls that arrive without a deadline.
func RequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}
