package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "medminder.v1.RemindersService"

type RemindersServiceServer interface {
	CreateReminder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ToggleReminder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteReminder(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	ListReminders(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	AdherenceSnapshot(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	ReportResponse(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

func RegisterRemindersServiceServer(r grpclib.ServiceRegistrar, srv RemindersServiceServer) {
	r.RegisterService(&remindersServiceDesc, srv)
}

var remindersServiceDesc = grpclib.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RemindersServiceServer)(nil),
	Methods: []grpclib.MethodDesc{
		{
			MethodName: "CreateReminder",
			Handler: unaryHandler("CreateReminder", newStruct, func(s RemindersServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
				return s.CreateReminder(ctx, in)
			}),
		},
		{
			MethodName: "ToggleReminder",
			Handler: unaryHandler("ToggleReminder", newStruct, func(s RemindersServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
				return s.ToggleReminder(ctx, in)
			}),
		},
		{
			MethodName: "DeleteReminder",
			Handler: unaryHandler("DeleteReminder", newStruct, func(s RemindersServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
				return s.DeleteReminder(ctx, in)
			}),
		},
		{
			MethodName: "ListReminders",
			Handler: unaryHandler("ListReminders", newEmpty, func(s RemindersServiceServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.ListReminders(ctx, in)
			}),
		},
		{
			MethodName: "AdherenceSnapshot",
			Handler: unaryHandler("AdherenceSnapshot", newEmpty, func(s RemindersServiceServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
				return s.AdherenceSnapshot(ctx, in)
			}),
		},
		{
			MethodName: "ReportResponse",
			Handler: unaryHandler("ReportResponse", newStruct, func(s RemindersServiceServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
				return s.ReportResponse(ctx, in)
			}),
		},
	},
	Streams:  []grpclib.StreamDesc{},
	Metadata: "medminder/v1/reminders.proto",
}

func newStruct() *structpb.Struct { return &structpb.Struct{} }

func newEmpty() *emptypb.Empty { return &emptypb.Empty{} }

func unaryHandler[Req proto.Message](method string, newReq func() Req, call func(RemindersServiceServer, context.Context, Req) (proto.Message, error)) grpclib.MethodHandler {
	fullMethod := "/" + serviceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RemindersServiceServer), ctx, in)
		}
		info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RemindersServiceServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
