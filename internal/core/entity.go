package core

import (
	"strings"
	"time"
)

// Kind identifies the category of a card.
type Kind string

const (
	KindInspirational Kind = "inspirational"
	KindPoetry        Kind = "poetry"
	KindPhilosophy    Kind = "philosophy"
)

// KindNames returns display names for card kinds.
var KindNames = map[Kind]string{
	KindInspirational: "Inspirational",
	KindPoetry:        "Poetry",
	KindPhilosophy:    "Philosophy",
}

// Entity is a content unit that can be favorited and liked.
type Entity struct {
	ID              string `json:"id" yaml:"id"`
	Content         string `json:"content" yaml:"content"`
	Author          string `json:"author,omitempty" yaml:"author,omitempty"`
	Kind            Kind   `json:"type,omitempty" yaml:"type,omitempty"`
	BackgroundStyle string `json:"background_style,omitempty" yaml:"backgroundStyle,omitempty"`
	GeneratedOn     string `json:"generate_date,omitempty" yaml:"generatedOn,omitempty"`
	Likes           int64  `json:"likes" yaml:"likes"`
	Favorites       int64  `json:"favorites" yaml:"favorites"`
	IsFavorited     bool   `json:"is_favorited" yaml:"isFavorited"`
	IsLiked         bool   `json:"is_liked" yaml:"isLiked"`
}

// Matches reports whether the entity content or author contains query, ignoring case.
func (e Entity) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(e.Content), q) ||
		strings.Contains(strings.ToLower(e.Author), q)
}

// LedgerRecord is a favorited entity snapshot.
type LedgerRecord struct {
	Entity      Entity    `json:"entity" yaml:"entity"`
	FavoritedAt time.Time `json:"favoritedAt" yaml:"favoritedAt"`
}

// ID returns the id of the recorded entity.
func (r LedgerRecord) ID() string {
	return r.Entity.ID
}

// Session is the current authentication state.
// An empty Token means the client is anonymous.
type Session struct {
	Token     string    `json:"token,omitempty" yaml:"token,omitempty"`
	Subject   string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// Active returns true if the session carries a token.
func (s Session) Active() bool {
	return s.Token != ""
}
