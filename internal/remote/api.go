package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/artpar/cardsync/internal/core"
)

// API exposes the backend operations used by the sync layer.
type API struct {
	doer Doer
}

// NewAPI creates an API that sends requests through doer.
func NewAPI(doer Doer) *API {
	return &API{doer: doer}
}

// LoginResult is returned by a successful login exchange.
type LoginResult struct {
	Token    string         `json:"token"`
	OpenID   string         `json:"openid"`
	UserInfo map[string]any `json:"userInfo"`
}

// wireID accepts both numeric and string ids.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", data)
	}
	*id = wireID(n.String())
	return nil
}

// wireCard is the backend card shape.
type wireCard struct {
	ID              wireID `json:"id"`
	Content         string `json:"content"`
	Author          string `json:"author"`
	Type            string `json:"type"`
	BackgroundStyle string `json:"background_style"`
	GenerateDate    string `json:"generate_date"`
	Likes           int64  `json:"likes"`
	Favorites       int64  `json:"favorites"`
	IsFavorited     bool   `json:"is_favorited"`
	IsLiked         bool   `json:"is_liked"`
}

func (w wireCard) entity() core.Entity {
	return core.Entity{
		ID:              string(w.ID),
		Content:         w.Content,
		Author:          w.Author,
		Kind:            core.Kind(w.Type),
		BackgroundStyle: w.BackgroundStyle,
		GeneratedOn:     w.GenerateDate,
		Likes:           w.Likes,
		Favorites:       w.Favorites,
		IsFavorited:     w.IsFavorited,
		IsLiked:         w.IsLiked,
	}
}

func (a *API) call(ctx context.Context, req *Request, out any) error {
	res, err := a.doer.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return res.Decode(out)
}

func (a *API) card(ctx context.Context, req *Request) (core.Entity, error) {
	var w wireCard
	if err := a.call(ctx, req, &w); err != nil {
		return core.Entity{}, err
	}
	if w.ID == "" {
		return core.Entity{}, core.ServerLogic("response card has no id")
	}
	return w.entity(), nil
}

// Login exchanges a platform login code for a session token.
func (a *API) Login(ctx context.Context, code string) (LoginResult, error) {
	var out LoginResult
	err := a.call(ctx, NewRequest(http.MethodPost, "/users/login", map[string]string{"code": code}), &out)
	if err != nil {
		return LoginResult{}, err
	}
	if out.Token == "" {
		return LoginResult{}, core.ServerLogic("login response has no token")
	}
	return out, nil
}

// DailyCard fetches today's card.
func (a *API) DailyCard(ctx context.Context) (core.Entity, error) {
	return a.card(ctx, NewRequest(http.MethodGet, "/cards/daily", nil))
}

// GenerateCard asks the backend for a new card of the given kind.
func (a *API) GenerateCard(ctx context.Context, kind core.Kind) (core.Entity, error) {
	return a.card(ctx, NewRequest(http.MethodPost, "/cards/generate", map[string]string{"type": string(kind)}))
}

// CardDetail fetches a single card.
func (a *API) CardDetail(ctx context.Context, id string) (core.Entity, error) {
	return a.card(ctx, NewRequest(http.MethodGet, "/cards/"+url.PathEscape(id), nil))
}

// SetFavorite adds or removes a favorite.
func (a *API) SetFavorite(ctx context.Context, id string, on bool) error {
	method := http.MethodPost
	if !on {
		method = http.MethodDelete
	}
	return a.call(ctx, NewRequest(method, "/cards/"+url.PathEscape(id)+"/favorite", nil), nil)
}

// SetLike likes or unlikes a card. It returns the server's like count when
// the response carries one.
func (a *API) SetLike(ctx context.Context, id string, on bool) (*int64, error) {
	action := "like"
	if !on {
		action = "unlike"
	}
	var out struct {
		Likes *int64 `json:"likes"`
	}
	err := a.call(ctx, NewRequest(http.MethodPost, "/cards/"+url.PathEscape(id)+"/like", map[string]string{"action": action}), &out)
	if err != nil {
		return nil, err
	}
	return out.Likes, nil
}

// Favorites fetches one page of the user's favorites, most recent first.
func (a *API) Favorites(ctx context.Context, page, limit int) ([]core.Entity, error) {
	out, err := a.list(ctx, "/cards/favorites", page, limit, nil)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].IsFavorited = true
	}
	return out, nil
}

// History fetches one page of previously generated cards, newest first.
// An empty kind lists every kind.
func (a *API) History(ctx context.Context, page, limit int, kind core.Kind) ([]core.Entity, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("type", string(kind))
	}
	return a.list(ctx, "/cards/history", page, limit, q)
}

func (a *API) list(ctx context.Context, path string, page, limit int, q url.Values) ([]core.Entity, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var cards []wireCard
	if err := a.call(ctx, NewRequest(http.MethodGet, path+"?"+q.Encode(), nil), &cards); err != nil {
		return nil, err
	}

	out := make([]core.Entity, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.entity())
	}
	return out, nil
}
