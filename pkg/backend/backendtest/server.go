// Package backendtest runs an in-process stand-in for the conversational
// service, for tests of the client side.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-go-golems/palaver/pkg/conversation"
)

type Route string

const (
	RouteHistory Route = "history"
	RouteChat    Route = "chat"
	RouteClear   Route = "clear"
	RouteHealth  Route = "health"
)

// Request records one call the server received.
type Request struct {
	Route          Route
	ConversationID string
	Message        string
}

type Server struct {
	*httptest.Server

	mu            sync.Mutex
	conversations map[string][]conversation.Message
	failures      map[Route]int
	raw           map[Route]string
	requests      []Request
	hold          chan struct{}

	// Reply computes the assistant answer for a submitted message.
	Reply func(text string) string
}

// New starts a server and closes it when t finishes.
func New(t testing.TB) *Server {
	s := &Server{
		conversations: map[string][]conversation.Message{},
		failures:      map[Route]int{},
		raw:           map[Route]string{},
		Reply: func(text string) string {
			return "echo: " + text
		},
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		api.Get("/history", s.handleHistory)
		api.Post("/chat", s.handleChat)
		api.Post("/clear", s.handleClear)
		api.Get("/health", s.handleHealth)
	})
	return r
}

// Seed stores messages for a conversation.
func (s *Server) Seed(conversationID string, msgs ...conversation.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = append(s.conversations[conversationID], msgs...)
}

// FailWith makes every call to route answer with status. Zero resets.
func (s *Server) FailWith(route Route, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// RespondRaw makes route answer 200 with body verbatim.
func (s *Server) RespondRaw(route Route, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[route] = body
}

// HoldReplies blocks chat requests until the returned function is called.
func (s *Server) HoldReplies() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.hold = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Server) Messages(conversationID string) []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]conversation.Message, len(s.conversations[conversationID]))
	copy(ret, s.conversations[conversationID])
	return ret
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Request, len(s.requests))
	copy(ret, s.requests)
	return ret
}

func (s *Server) CountRequests(route Route) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Route == route {
			n++
		}
	}
	return n
}

// intercept records the request and writes an injected answer if one is
// configured. It returns true when the handler should stop.
func (s *Server) intercept(w http.ResponseWriter, req Request) bool {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	status, fail := s.failures[req.Route]
	raw, hasRaw := s.raw[req.Route]
	s.mu.Unlock()

	if fail {
		respondError(w, status, "injected failure")
		return true
	}
	if hasRaw {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(raw))
		return true
	}
	return false
}

// legacyMessage mirrors the service's on-disk shape, which uses "type" and
// "ai" instead of "role" and "assistant".
type legacyMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conversation_id")
	if s.intercept(w, Request{Route: RouteHistory, ConversationID: id}) {
		return
	}

	msgs := s.Messages(id)
	out := make([]legacyMessage, len(msgs))
	for i, m := range msgs {
		t := string(m.Role)
		if m.Role == conversation.RoleAssistant {
			t = "ai"
		}
		out[i] = legacyMessage{Type: t, Content: m.Content, Timestamp: m.Timestamp}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"messages": out})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.intercept(w, Request{Route: RouteChat, ConversationID: payload.ConversationID, Message: payload.Message}) {
		return
	}

	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	if payload.Message == "" {
		respondError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	reply := s.Reply(payload.Message)
	now := time.Now()
	s.Seed(payload.ConversationID,
		conversation.NewUserMessage(payload.Message, now),
		conversation.NewAssistantMessage(reply, now),
	)
	respondJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.intercept(w, Request{Route: RouteClear, ConversationID: payload.ConversationID}) {
		return
	}

	s.mu.Lock()
	delete(s.conversations, payload.ConversationID)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]string{"message": "Chat cleared successfully", "status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.intercept(w, Request{Route: RouteHealth}) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"api_configured": false,
		"mode":           "fallback_ai",
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
