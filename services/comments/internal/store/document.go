package store

import "github.com/example/artist-portfolio/internal/platform/docstore"

const (
	fieldTargetID   = "targetId"
	fieldTargetType = "targetType"
	fieldParentID   = "parentId"
	fieldAuthorName = "authorName"
	fieldContent    = "content"
	fieldLikes      = "likes"
	fieldLikedBy    = "likedBy"
	fieldCreatedAt  = "createdAt"
	fieldUpdatedAt  = "updatedAt"
	fieldDeletedAt  = "deletedAt"
)

func toDocument(c Comment) docstore.Document {
	likedBy := c.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}
	fields := map[string]any{
		fieldTargetID:   c.TargetID,
		fieldTargetType: string(c.TargetType),
		fieldParentID:   nil,
		fieldAuthorName: c.AuthorName,
		fieldContent:    c.Content,
		fieldLikes:      len(likedBy),
		fieldLikedBy:    likedBy,
		fieldCreatedAt:  c.CreatedAt.UTC(),
	}
	if c.ParentID != nil {
		fields[fieldParentID] = *c.ParentID
	}
	if c.UpdatedAt != nil {
		fields[fieldUpdatedAt] = c.UpdatedAt.UTC()
	}
	return docstore.Document{ID: c.ID, Fields: fields}
}

func fromDocument(d docstore.Document) Comment {
	c := Comment{
		ID:         d.ID,
		TargetID:   d.String(fieldTargetID),
		TargetType: TargetType(d.String(fieldTargetType)),
		ParentID:   d.OptString(fieldParentID),
		AuthorName: d.String(fieldAuthorName),
		Content:    d.String(fieldContent),
		Likes:      int(d.Int(fieldLikes)),
		LikedBy:    d.Strings(fieldLikedBy),
	}
	if c.LikedBy == nil {
		c.LikedBy = []string{}
	}
	if t, ok := d.Time(fieldCreatedAt); ok {
		c.CreatedAt = t
	}
	if t, ok := d.Time(fieldUpdatedAt); ok {
		c.UpdatedAt = &t
	}
	return c
}

func fromDocuments(docs []docstore.Document) []Comment {
	out := make([]Comment, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out
}

func threadFilter(t Target) docstore.Filter {
	return docstore.Filter{
		docstore.Eq(fieldTargetID, t.ID),
		docstore.Eq(fieldTargetType, string(t.Type)),
	}
}
