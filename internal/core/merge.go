package core

// EntityPatch is a partial update to an Entity. Nil fields are left untouched.
type EntityPatch struct {
	Content         *string
	Author          *string
	Kind            *Kind
	BackgroundStyle *string
	GeneratedOn     *string
	Likes           *int64
	Favorites       *int64
	IsFavorited     *bool
	IsLiked         *bool
}

// Apply returns a copy of e with every non-nil patch field applied.
func (p EntityPatch) Apply(e Entity) Entity {
	if p.Content != nil {
		e.Content = *p.Content
	}
	if p.Author != nil {
		e.Author = *p.Author
	}
	if p.Kind != nil {
		e.Kind = *p.Kind
	}
	if p.BackgroundStyle != nil {
		e.BackgroundStyle = *p.BackgroundStyle
	}
	if p.GeneratedOn != nil {
		e.GeneratedOn = *p.GeneratedOn
	}
	if p.Likes != nil {
		e.Likes = *p.Likes
	}
	if p.Favorites != nil {
		e.Favorites = *p.Favorites
	}
	if p.IsFavorited != nil {
		e.IsFavorited = *p.IsFavorited
	}
	if p.IsLiked != nil {
		e.IsLiked = *p.IsLiked
	}
	return e
}

// Merge combines a stale copy with a fresh one fetched from the remote side.
//
// Text fields of fresh win when they are non-empty. Counters and flags always
// come from fresh, since a zero there is a real value and not an omission.
// The id of stale is kept when fresh has none.
func Merge(stale, fresh Entity) Entity {
	out := stale
	if fresh.ID != "" {
		out.ID = fresh.ID
	}
	if fresh.Content != "" {
		out.Content = fresh.Content
	}
	if fresh.Author != "" {
		out.Author = fresh.Author
	}
	if fresh.Kind != "" {
		out.Kind = fresh.Kind
	}
	if fresh.BackgroundStyle != "" {
		out.BackgroundStyle = fresh.BackgroundStyle
	}
	if fresh.GeneratedOn != "" {
		out.GeneratedOn = fresh.GeneratedOn
	}
	out.Likes = fresh.Likes
	out.Favorites = fresh.Favorites
	out.IsFavorited = fresh.IsFavorited
	out.IsLiked = fresh.IsLiked
	return out
}
