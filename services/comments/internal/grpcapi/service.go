// Package grpcapi serves comments.v1.CommentService over gRPC for internal
// callers. Messages are JSON-encoded Go structs.
package grpcapi

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/example/artist-portfolio/internal/platform/auth"
	"github.com/example/artist-portfolio/internal/platform/logging"
	"github.com/example/artist-portfolio/services/comments/internal/engagement"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

const serviceName = "comments.v1.CommentService"

// Engagement is the slice of the engagement service exposed over gRPC.
type Engagement interface {
	Submit(ctx context.Context, in engagement.Input, idempotencyKey string) (store.Comment, error)
	ToggleLike(ctx context.Context, in engagement.LikeInput) (store.Comment, error)
	Delete(ctx context.Context, targetID, commentID string) error
	ThreadTree(ctx context.Context, target store.Target) ([]engagement.Node, error)
	SubscribeAll(ctx context.Context) (*engagement.Subscription, error)
}

type CommentServiceServer interface {
	SubmitComment(context.Context, *SubmitCommentRequest) (*store.Comment, error)
	ToggleLike(context.Context, *ToggleLikeRequest) (*store.Comment, error)
	DeleteComment(context.Context, *DeleteCommentRequest) (*DeleteCommentResponse, error)
	ListThread(context.Context, *ListThreadRequest) (*ListThreadResponse, error)
	SubscribeAll(*SubscribeAllRequest, SubscribeAllServer) error
}

type SubscribeAllServer interface {
	Send(*SubscribeAllResponse) error
	grpc.ServerStream
}

type CommentService struct {
	Svc      Engagement
	Verifier auth.JWTVerifier
	Log      *zap.Logger
}

// Register adds the service to s.
func Register(s grpc.ServiceRegistrar, srv CommentServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func (s *CommentService) SubmitComment(ctx context.Context, req *SubmitCommentRequest) (*store.Comment, error) {
	c, err := s.Svc.Submit(ctx, engagement.Input{
		Target:     store.Target{Type: store.TargetType(strings.ToLower(strings.TrimSpace(req.TargetType))), ID: strings.TrimSpace(req.TargetID)},
		ParentID:   req.ParentID,
		AuthorName: req.AuthorName,
		Content:    req.Content,
	}, strings.TrimSpace(req.IdempotencyKey))
	if err != nil {
		return nil, s.fail(ctx, "SubmitComment", err)
	}
	return &c, nil
}

func (s *CommentService) ToggleLike(ctx context.Context, req *ToggleLikeRequest) (*store.Comment, error) {
	c, err := s.Svc.ToggleLike(ctx, engagement.LikeInput{
		CommentID: strings.TrimSpace(req.CommentID),
		SessionID: strings.TrimSpace(req.SessionID),
	})
	if err != nil {
		return nil, s.fail(ctx, "ToggleLike", err)
	}
	return &c, nil
}

func (s *CommentService) DeleteComment(ctx context.Context, req *DeleteCommentRequest) (*DeleteCommentResponse, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := s.Svc.Delete(ctx, strings.TrimSpace(req.TargetID), strings.TrimSpace(req.CommentID)); err != nil {
		return nil, s.fail(ctx, "DeleteComment", err)
	}
	return &DeleteCommentResponse{}, nil
}

func (s *CommentService) ListThread(ctx context.Context, req *ListThreadRequest) (*ListThreadResponse, error) {
	nodes, err := s.Svc.ThreadTree(ctx, store.Target{
		Type: store.TargetType(strings.ToLower(strings.TrimSpace(req.TargetType))),
		ID:   strings.TrimSpace(req.TargetID),
	})
	if err != nil {
		return nil, s.fail(ctx, "ListThread", err)
	}
	return &ListThreadResponse{Comments: nodes}, nil
}

// SubscribeAll sends a snapshot of every comment on open and after each change.
func (s *CommentService) SubscribeAll(_ *SubscribeAllRequest, stream SubscribeAllServer) error {
	ctx := stream.Context()
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	sub, err := s.Svc.SubscribeAll(ctx)
	if err != nil {
		return s.fail(ctx, "SubscribeAll", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case comments, ok := <-sub.C:
			if !ok {
				if err := sub.Err(); err != nil {
					return s.fail(ctx, "SubscribeAll", err)
				}
				return nil
			}
			if err := stream.Send(&SubscribeAllResponse{Comments: comments}); err != nil {
				return err
			}
		}
	}
}

func (s *CommentService) requireAdmin(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	var header string
	if v := md.Get("authorization"); len(v) > 0 {
		header = v[0]
	}
	claims, err := s.Verifier.ParseBearer(header)
	if err != nil {
		return errUnauthenticated("authentication required")
	}
	if !claims.IsAdmin() {
		return errPermissionDenied("moderator role required")
	}
	return nil
}

func (s *CommentService) fail(ctx context.Context, method string, err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal && s.Log != nil {
		logging.WithContext(ctx, s.Log).Error("grpc call failed", zap.String("method", method), zap.Error(err))
	}
	return st
}
