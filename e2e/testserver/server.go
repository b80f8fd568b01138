// Package testserver provides an in-process card service for E2E tests.
package testserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

const token = "e2e-token"

// Card is a card held by the server.
type Card struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	Type      string `json:"type"`
	Likes     int64  `json:"likes"`
	Favorites int64  `json:"favorites"`
}

// Server is a card service backed by httptest.Server. It records every
// request it receives.
type Server struct {
	*httptest.Server
	handlers Handlers

	mu        sync.Mutex
	requests  []*RecordedRequest
	cards     map[string]*Card
	order     []string
	daily     string
	favorites []string
	liked     map[string]bool
	expired   bool
}

// RecordedRequest stores request details for verification.
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Time    time.Time
}

// New creates a card service holding cards, oldest first. The first card is
// the daily card.
func New(cards ...Card) *Server {
	s := &Server{
		cards: make(map[string]*Card),
		liked: make(map[string]bool),
	}
	for i := range cards {
		c := cards[i]
		s.cards[c.ID] = &c
		s.order = append(s.order, c.ID)
		if i == 0 {
			s.daily = c.ID
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", s.record(s.login))
	mux.HandleFunc("GET /cards/daily", s.record(s.authorized(s.dailyCard)))
	mux.HandleFunc("GET /cards/favorites", s.record(s.authorized(s.listFavorites)))
	mux.HandleFunc("GET /cards/history", s.record(s.authorized(s.history)))
	mux.HandleFunc("GET /cards/{id}", s.record(s.card))
	mux.HandleFunc("POST /cards/{id}/favorite", s.record(s.authorized(s.favorite)))
	mux.HandleFunc("DELETE /cards/{id}/favorite", s.record(s.authorized(s.unfavorite)))
	mux.HandleFunc("POST /cards/{id}/like", s.record(s.authorized(s.like)))

	s.Server = httptest.NewServer(mux)
	return s
}

// ExpireSessions makes every authorized endpoint reject the current token.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = true
}

// Favorites returns the favorited card ids, oldest first.
func (s *Server) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.favorites...)
}

// LastRequest returns the last recorded request.
func (s *Server) LastRequest() *RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

// Requests returns all recorded requests.
func (s *Server) Requests() []*RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*RecordedRequest, len(s.requests))
	copy(result, s.requests)
	return result
}

// RequestCount returns the number of recorded requests.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Server) record(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, &RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Time:    time.Now(),
		})
		s.mu.Unlock()
		h(w, r)
	}
}

func (s *Server) authorized(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		expired := s.expired
		s.mu.Unlock()

		if expired || strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
			s.handlers.Unauthorized("token expired")(w, r)
			return
		}
		h(w, r)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.expired = false
	s.mu.Unlock()
	s.handlers.Envelope(http.StatusOK, map[string]string{"token": token, "openid": "e2e-user"})(w, r)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*Card, bool) {
	c, ok := s.cards[r.PathValue("id")]
	if !ok {
		s.handlers.Failure(http.StatusNotFound, "card not found")(w, r)
	}
	return c, ok
}

func (s *Server) view(c *Card) map[string]any {
	favorited := false
	for _, id := range s.favorites {
		if id == c.ID {
			favorited = true
		}
	}
	return map[string]any{
		"id":           c.ID,
		"content":      c.Content,
		"author":       c.Author,
		"type":         c.Type,
		"likes":        c.Likes,
		"favorites":    c.Favorites,
		"is_favorited": favorited,
		"is_liked":     s.liked[c.ID],
	}
}

func (s *Server) dailyCard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers.Envelope(http.StatusOK, s.view(s.cards[s.daily]))(w, r)
}

func (s *Server) card(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.lookup(w, r); ok {
		s.handlers.Envelope(http.StatusOK, s.view(c))(w, r)
	}
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.favorites))
	for i := len(s.favorites) - 1; i >= 0; i-- {
		out = append(out, s.view(s.cards[s.favorites[i]]))
	}
	s.handlers.Envelope(http.StatusOK, out)(w, r)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		limit = 20
	}

	var matched []map[string]any
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.cards[s.order[i]]
		if kind := q.Get("type"); kind != "" && c.Type != kind {
			continue
		}
		matched = append(matched, s.view(c))
	}

	out := make([]map[string]any, 0, limit)
	if start := (page - 1) * limit; start < len(matched) {
		out = append(out, matched[start:min(start+limit, len(matched))]...)
	}
	s.handlers.Envelope(http.StatusOK, out)(w, r)
}

func (s *Server) favorite(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	for _, id := range s.favorites {
		if id == c.ID {
			s.handlers.Failure(http.StatusBadRequest, "already favorited")(w, r)
			return
		}
	}
	s.favorites = append(s.favorites, c.ID)
	c.Favorites++
	s.handlers.Envelope(http.StatusOK, nil)(w, r)
}

func (s *Server) unfavorite(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	for i, id := range s.favorites {
		if id == c.ID {
			s.favorites = append(s.favorites[:i], s.favorites[i+1:]...)
			if c.Favorites > 0 {
				c.Favorites--
			}
			s.handlers.Envelope(http.StatusOK, nil)(w, r)
			return
		}
	}
	s.handlers.Failure(http.StatusBadRequest, "not favorited")(w, r)
}

func (s *Server) like(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.handlers.Failure(http.StatusBadRequest, "invalid body")(w, r)
		return
	}
	on := body.Action == "like"
	if s.liked[c.ID] == on {
		s.handlers.Envelope(http.StatusOK, map[string]int64{"likes": c.Likes})(w, r)
		return
	}
	s.liked[c.ID] = on
	if on {
		c.Likes++
	} else if c.Likes > 0 {
		c.Likes--
	}
	s.handlers.Envelope(http.StatusOK, map[string]int64{"likes": c.Likes})(w, r)
}
