package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/example/artist-portfolio/services/comments/internal/store"
)

const (
	MethodSubmitComment = "/" + serviceName + "/SubmitComment"
	MethodToggleLike    = "/" + serviceName + "/ToggleLike"
	MethodDeleteComment = "/" + serviceName + "/DeleteComment"
	MethodListThread    = "/" + serviceName + "/ListThread"
	MethodSubscribeAll  = "/" + serviceName + "/SubscribeAll"
)

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CommentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitComment", Handler: submitCommentHandler},
		{MethodName: "ToggleLike", Handler: toggleLikeHandler},
		{MethodName: "DeleteComment", Handler: deleteCommentHandler},
		{MethodName: "ListThread", Handler: listThreadHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "SubscribeAll", Handler: subscribeAllHandler, ServerStreams: true},
	},
	Metadata: "comments/v1/comments.proto",
}

func unary[Req any, Resp any](method string, call func(CommentServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CommentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CommentServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	submitCommentHandler = unary(MethodSubmitComment, func(s CommentServiceServer, ctx context.Context, in *SubmitCommentRequest) (*store.Comment, error) {
		return s.SubmitComment(ctx, in)
	})
	toggleLikeHandler = unary(MethodToggleLike, func(s CommentServiceServer, ctx context.Context, in *ToggleLikeRequest) (*store.Comment, error) {
		return s.ToggleLike(ctx, in)
	})
	deleteCommentHandler = unary(MethodDeleteComment, func(s CommentServiceServer, ctx context.Context, in *DeleteCommentRequest) (*DeleteCommentResponse, error) {
		return s.DeleteComment(ctx, in)
	})
	listThreadHandler = unary(MethodListThread, func(s CommentServiceServer, ctx context.Context, in *ListThreadRequest) (*ListThreadResponse, error) {
		return s.ListThread(ctx, in)
	})
)

func subscribeAllHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeAllRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CommentServiceServer).SubscribeAll(in, &subscribeAllServer{stream})
}

type subscribeAllServer struct {
	grpc.ServerStream
}

func (x *subscribeAllServer) Send(m *SubscribeAllResponse) error {
	return x.ServerStream.SendMsg(m)
}
