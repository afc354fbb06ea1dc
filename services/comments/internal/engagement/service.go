// Package engagement implements the comment workflows: submitting comments
// and replies, toggling likes, moderator cascade deletes and live
// subscriptions over a thread or the whole comment set.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/docstore"
	"github.com/example/artist-portfolio/internal/platform/logging"
	"github.com/example/artist-portfolio/services/comments/internal/publisher"
	"github.com/example/artist-portfolio/services/comments/internal/store"
)

const tracerName = "github.com/example/artist-portfolio/services/comments/internal/engagement"

// Claimer pins a comment id to an idempotency key.
type Claimer interface {
	Claim(ctx context.Context, key, candidateID string) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, evt publisher.Event)
}

type Options struct {
	// Idempotency enables safe submit retries. Without it keys are ignored.
	Idempotency Claimer
	Publisher   EventPublisher
	Logger      *zap.Logger
	Retry       RetryPolicy
	Now         func() time.Time
}

type Service struct {
	store  store.CommentStore
	idem   Claimer
	pub    EventPublisher
	log    *zap.Logger
	retry  RetryPolicy
	now    func() time.Time
	tracer trace.Tracer
}

func New(cs store.CommentStore, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:  cs,
		idem:   opts.Idempotency,
		pub:    opts.Publisher,
		log:    opts.Logger,
		retry:  opts.Retry,
		now:    opts.Now,
		tracer: otel.Tracer(tracerName),
	}
}

// Submit validates in and stores a new comment with zero likes.
//
// Without an idempotency key the write is attempted once, since a retry
// after an ambiguous failure could store the comment twice. With a key the
// document id is pinned first, so retries and repeated requests converge on
// one comment.
func (s *Service) Submit(ctx context.Context, in Input, idempotencyKey string) (store.Comment, error) {
	ctx, span := s.tracer.Start(ctx, "comments.submit", trace.WithAttributes(
		attribute.String("comment.target_type", string(in.Target.Type)),
		attribute.String("comment.target_id", in.Target.ID),
		attribute.Bool("comment.idempotent", idempotencyKey != ""),
	))
	defer span.End()

	c, err := s.submit(ctx, in, idempotencyKey)
	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.String("comment.id", c.ID))
	}
	return c, err
}

func (s *Service) submit(ctx context.Context, in Input, key string) (store.Comment, error) {
	in, err := in.normalize()
	if err != nil {
		return store.Comment{}, err
	}

	if in.ParentID != nil {
		parent, err := s.get(ctx, *in.ParentID)
		if err != nil {
			return store.Comment{}, err
		}
		if parent.Target() != in.Target {
			return store.Comment{}, invalid("parentId", "parent comment belongs to a different thread")
		}
	}

	c := store.Comment{
		ID:         uuid.NewString(),
		TargetID:   in.Target.ID,
		TargetType: in.Target.Type,
		ParentID:   in.ParentID,
		AuthorName: in.AuthorName,
		Content:    in.Content,
		LikedBy:    []string{},
		CreatedAt:  s.now().UTC().Truncate(time.Millisecond),
	}

	var (
		created  store.Comment
		replayed bool
	)
	if key != "" && s.idem != nil {
		created, replayed, err = s.createIdempotent(ctx, c, key)
	} else {
		created, err = s.store.Create(ctx, c)
	}
	if err != nil {
		return store.Comment{}, err
	}
	if replayed {
		return created, nil
	}

	if created.ParentID != nil {
		if err := s.confirmParent(ctx, created); err != nil {
			return store.Comment{}, err
		}
	}

	logging.WithContext(ctx, s.log).Info("comment submitted",
		zap.String("comment_id", created.ID),
		zap.String("target_type", string(created.TargetType)),
		zap.String("target_id", created.TargetID),
	)
	s.publish(ctx, publisher.Event{
		Subject:    publisher.SubjectCreated,
		CommentID:  created.ID,
		TargetType: string(created.TargetType),
		TargetID:   created.TargetID,
		ParentID:   deref(created.ParentID),
	})
	return created, nil
}

// createIdempotent reports replayed=true when the key was already used and
// the comment it points at is returned instead of a new one. A key whose
// comment was deleted stays dead, and a key reused for a different request
// is rejected.
func (s *Service) createIdempotent(ctx context.Context, c store.Comment, key string) (store.Comment, bool, error) {
	candidate := c.ID
	err := s.retry.do(ctx, func(ctx context.Context) error {
		id, err := s.idem.Claim(ctx, key, candidate)
		if err == nil {
			c.ID = id
		}
		return err
	})
	if err != nil {
		return store.Comment{}, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	seen := c.ID != candidate

	if seen {
		existing, err := s.get(ctx, c.ID)
		switch {
		case err == nil:
			return s.replay(existing, c)
		case !errors.Is(err, ErrNotFound):
			return store.Comment{}, false, err
		}
		if err := s.refuseBuried(ctx, c.ID); err != nil {
			return store.Comment{}, false, err
		}
	}

	var created store.Comment
	err = s.retry.do(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.store.Create(ctx, c)
		return err
	})
	if errors.Is(err, docstore.ErrConflict) {
		existing, err := s.get(ctx, c.ID)
		if err != nil {
			return store.Comment{}, false, err
		}
		return s.replay(existing, c)
	}
	if err != nil {
		return store.Comment{}, false, err
	}

	// A delete may have buried the id between the check above and the write.
	if seen {
		if err := s.refuseBuried(ctx, c.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				if _, derr := s.deleteSubtree(ctx, []string{c.ID}); derr != nil {
					return store.Comment{}, false, derr
				}
			}
			return store.Comment{}, false, err
		}
	}
	return created, false, nil
}

// replay returns existing for a repeated request, or a validation error when
// the key was first used for a different comment.
func (s *Service) replay(existing, req store.Comment) (store.Comment, bool, error) {
	if existing.Target() != req.Target() ||
		deref(existing.ParentID) != deref(req.ParentID) ||
		existing.Content != req.Content {
		return store.Comment{}, false, invalid("Idempotency-Key", "was already used for a different comment")
	}
	return existing, true, nil
}

func (s *Service) refuseBuried(ctx context.Context, id string) error {
	var buried bool
	err := s.retry.do(ctx, func(ctx context.Context) error {
		var err error
		buried, err = s.store.Buried(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	if buried {
		return commentNotFound(id)
	}
	return nil
}

// confirmParent re-reads the parent after the reply is stored. A cascade
// delete that finished between the first check and the write would not have
// seen the reply, so the reply is withdrawn instead of left orphaned.
func (s *Service) confirmParent(ctx context.Context, reply store.Comment) error {
	_, err := s.get(ctx, *reply.ParentID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		logging.WithContext(ctx, s.log).Warn("could not confirm parent of new reply",
			zap.String("comment_id", reply.ID),
			zap.String("parent_id", *reply.ParentID),
			zap.Error(err),
		)
		return nil
	}
	if _, derr := s.deleteSubtree(ctx, []string{reply.ID}); derr != nil {
		return derr
	}
	return err
}

// ToggleLike adds the session to the comment's likers, or removes it if
// already present. Concurrent toggles by different sessions are all applied.
func (s *Service) ToggleLike(ctx context.Context, in LikeInput) (store.Comment, error) {
	ctx, span := s.tracer.Start(ctx, "comments.toggle_like", trace.WithAttributes(
		attribute.String("comment.id", in.CommentID),
	))
	defer span.End()

	c, added, err := s.toggleLike(ctx, in)
	finish(span, err)
	if err != nil {
		return store.Comment{}, err
	}
	span.SetAttributes(attribute.Bool("comment.liked", added), attribute.Int("comment.likes", c.Likes))

	subject := publisher.SubjectLiked
	if !added {
		subject = publisher.SubjectUnliked
	}
	s.publish(ctx, publisher.Event{
		Subject:    subject,
		CommentID:  c.ID,
		TargetType: string(c.TargetType),
		TargetID:   c.TargetID,
		SessionID:  in.SessionID,
		Likes:      c.Likes,
	})
	return c, nil
}

func (s *Service) toggleLike(ctx context.Context, in LikeInput) (store.Comment, bool, error) {
	if err := in.validate(); err != nil {
		return store.Comment{}, false, err
	}
	var (
		c     store.Comment
		added bool
	)
	err := s.retry.do(ctx, func(ctx context.Context) error {
		var err error
		c, added, err = s.store.ToggleLike(ctx, in.CommentID, in.SessionID, s.now().UTC().Truncate(time.Millisecond))
		return err
	})
	if err != nil {
		return store.Comment{}, false, storeErr(in.CommentID, err)
	}
	return c, added, nil
}

// Thread returns a thread's comments oldest first.
func (s *Service) Thread(ctx context.Context, target store.Target) ([]store.Comment, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}
	var out []store.Comment
	err := s.retry.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.ListThread(ctx, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortOldestFirst(out)
	return out, nil
}

// ThreadTree returns a thread nested by reply.
func (s *Service) ThreadTree(ctx context.Context, target store.Target) ([]Node, error) {
	comments, err := s.Thread(ctx, target)
	if err != nil {
		return nil, err
	}
	return BuildTree(comments), nil
}

// All returns every comment newest first, for moderation.
func (s *Service) All(ctx context.Context) ([]store.Comment, error) {
	var out []store.Comment
	err := s.retry.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.ListAll(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Service) get(ctx context.Context, id string) (store.Comment, error) {
	var c store.Comment
	err := s.retry.do(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.store.Get(ctx, id)
		return err
	})
	if err != nil {
		return store.Comment{}, storeErr(id, err)
	}
	return c, nil
}

const publishTimeout = 2 * time.Second

func (s *Service) publish(ctx context.Context, evt publisher.Event) {
	if s.pub == nil {
		return
	}
	evt.EventID = uuid.NewString()
	evt.OccurredAt = s.now().UTC()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	s.pub.Publish(ctx, evt)
}

func finish(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) {
		span.SetStatus(codes.Error, err.Error())
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
