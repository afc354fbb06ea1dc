package engagement

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/logging"
	"github.com/example/artist-portfolio/services/comments/internal/publisher"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

// maxSweeps bounds the passes that chase replies written while a cascade
// was running. Replies that still slip past are withdrawn by their own
// submit, which re-checks the parent after writing.
const maxSweeps = 8

// Delete removes a comment and every reply beneath it. The comment must
// belong to targetID. Callers are expected to be moderators.
func (s *Service) Delete(ctx context.Context, targetID, commentID string) error {
	ctx, span := s.tracer.Start(ctx, "comments.delete", trace.WithAttributes(
		attribute.String("comment.target_id", targetID),
		attribute.String("comment.id", commentID),
	))
	defer span.End()

	removed, err := s.delete(ctx, targetID, commentID)
	finish(span, err)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("comment.deleted", len(removed)))
	return nil
}

func (s *Service) delete(ctx context.Context, targetID, commentID string) ([]string, error) {
	if strings.TrimSpace(targetID) == "" {
		return nil, invalid("targetId", "is required")
	}
	if strings.TrimSpace(commentID) == "" {
		return nil, invalid("commentId", "is required")
	}

	root, err := s.get(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if root.TargetID != targetID {
		return nil, commentNotFound(commentID)
	}

	removed, err := s.deleteSubtree(ctx, []string{root.ID})
	if err != nil {
		return nil, err
	}

	for sweep := 0; ; sweep++ {
		late, err := s.children(ctx, removed)
		if err != nil {
			return removed, err
		}
		if len(late) == 0 {
			break
		}
		if sweep == maxSweeps {
			logging.WithContext(ctx, s.log).Warn("replies still arriving after cascade delete",
				zap.String("comment_id", root.ID),
				zap.Int("pending", len(late)),
			)
			break
		}
		more, err := s.deleteSubtree(ctx, commentIDs(late))
		if err != nil {
			return removed, err
		}
		removed = append(removed, more...)
	}

	logging.WithContext(ctx, s.log).Info("comment deleted",
		zap.String("comment_id", root.ID),
		zap.String("target_id", root.TargetID),
		zap.Int("removed", len(removed)),
	)
	s.publish(ctx, publisher.Event{
		Subject:    publisher.SubjectDeleted,
		CommentID:  root.ID,
		TargetType: string(root.TargetType),
		TargetID:   root.TargetID,
		ParentID:   deref(root.ParentID),
		DeletedIDs: removed,
	})
	return removed, nil
}

// deleteSubtree collects the subtrees under roots level by level, buries
// every id, then deletes from the deepest level up so a reply never outlives
// its parent.
func (s *Service) deleteSubtree(ctx context.Context, roots []string) ([]string, error) {
	levels := [][]string{roots}
	seen := make(map[string]struct{}, len(roots))
	for _, id := range roots {
		seen[id] = struct{}{}
	}

	for frontier := roots; len(frontier) > 0; {
		kids, err := s.children(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, k := range kids {
			if _, dup := seen[k.ID]; dup {
				continue
			}
			seen[k.ID] = struct{}{}
			next = append(next, k.ID)
		}
		if len(next) > 0 {
			levels = append(levels, next)
		}
		frontier = next
	}

	all := make([]string, 0, len(seen))
	for _, level := range levels {
		all = append(all, level...)
	}
	at := s.now()
	if err := s.retry.do(ctx, func(ctx context.Context) error {
		return s.store.Bury(ctx, all, at)
	}); err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(seen))
	for i := len(levels) - 1; i >= 0; i-- {
		level := levels[i]
		err := s.retry.do(ctx, func(ctx context.Context) error {
			_, err := s.store.DeleteIDs(ctx, level)
			return err
		})
		if err != nil {
			return nil, err
		}
		removed = append(removed, level...)
	}
	return removed, nil
}

func (s *Service) children(ctx context.Context, parentIDs []string) ([]store.Comment, error) {
	var kids []store.Comment
	err := s.retry.do(ctx, func(ctx context.Context) error {
		var err error
		kids, err = s.store.Children(ctx, parentIDs)
		return err
	})
	return kids, err
}

func commentIDs(cs []store.Comment) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}
