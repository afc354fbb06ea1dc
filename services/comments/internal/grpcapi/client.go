package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/example/artist-portfolio/services/comments/internal/store"
)

// Client calls CommentService with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SubmitComment(ctx context.Context, in *SubmitCommentRequest, opts ...grpc.CallOption) (*store.Comment, error) {
	out := new(store.Comment)
	if err := c.cc.Invoke(ctx, MethodSubmitComment, in, out, append(opts, CallOption())...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ToggleLike(ctx context.Context, in *ToggleLikeRequest, opts ...grpc.CallOption) (*store.Comment, error) {
	out := new(store.Comment)
	if err := c.cc.Invoke(ctx, MethodToggleLike, in, out, append(opts, CallOption())...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteComment(ctx context.Context, in *DeleteCommentRequest, opts ...grpc.CallOption) (*DeleteCommentResponse, error) {
	out := new(DeleteCommentResponse)
	if err := c.cc.Invoke(ctx, MethodDeleteComment, in, out, append(opts, CallOption())...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListThread(ctx context.Context, in *ListThreadRequest, opts ...grpc.CallOption) (*ListThreadResponse, error) {
	out := new(ListThreadResponse)
	if err := c.cc.Invoke(ctx, MethodListThread, in, out, append(opts, CallOption())...); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscribeAllClient receives moderation snapshots until the stream ends.
type SubscribeAllClient struct {
	grpc.ClientStream
}

func (x *SubscribeAllClient) Recv() (*SubscribeAllResponse, error) {
	m := new(SubscribeAllResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) SubscribeAll(ctx context.Context, in *SubscribeAllRequest, opts ...grpc.CallOption) (*SubscribeAllClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodSubscribeAll, append(opts, CallOption())...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SubscribeAllClient{stream}, nil
}
