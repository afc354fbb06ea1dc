package engagement

import (
	"strings"
	"unicode/utf8"

	"github.com/example/artist-portfolio/services/comments/internal/store"
)

const (
	MaxContentLength    = 5000
	MaxAuthorNameLength = 80
	MaxSessionIDLength  = 128
	DefaultAuthorName   = "Anonymous"
)

// Input is a comment submission.
type Input struct {
	Target     store.Target
	ParentID   *string
	AuthorName string
	Content    string
}

// LikeInput is one like toggle by an anonymous session.
type LikeInput struct {
	CommentID string
	SessionID string
}

func validateTarget(t store.Target) error {
	if !t.Type.Valid() {
		return invalid("targetType", `must be "artwork" or "post"`)
	}
	if strings.TrimSpace(t.ID) == "" {
		return invalid("targetId", "is required")
	}
	return nil
}

// normalize trims the free-text fields, applies defaults and validates.
func (in Input) normalize() (Input, error) {
	in.Target.ID = strings.TrimSpace(in.Target.ID)
	if err := validateTarget(in.Target); err != nil {
		return Input{}, err
	}

	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return Input{}, invalid("content", "must not be empty")
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return Input{}, invalid("content", "is too long")
	}

	in.AuthorName = strings.TrimSpace(in.AuthorName)
	if in.AuthorName == "" {
		in.AuthorName = DefaultAuthorName
	}
	if utf8.RuneCountInString(in.AuthorName) > MaxAuthorNameLength {
		return Input{}, invalid("authorName", "is too long")
	}

	if in.ParentID != nil {
		p := strings.TrimSpace(*in.ParentID)
		if p == "" {
			in.ParentID = nil
		} else {
			in.ParentID = &p
		}
	}
	return in, nil
}

func (in LikeInput) validate() error {
	if strings.TrimSpace(in.CommentID) == "" {
		return invalid("commentId", "is required")
	}
	if strings.TrimSpace(in.SessionID) == "" {
		return invalid("sessionId", "is required")
	}
	if len(in.SessionID) > MaxSessionIDLength {
		return invalid("sessionId", "is too long")
	}
	return nil
}
