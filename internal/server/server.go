package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"partychat/internal/api"
	"partychat/internal/model"
)

const maxUploadBytes = 8 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // dev server only
}

type contextKey string

const (
	userKey     contextKey = "user_id"
	usernameKey contextKey = "username"
)

// Server wires the store, hub and router together.
type Server struct {
	store  *Store
	hub    *Hub
	log    zerolog.Logger
	router chi.Router
}

func New(secret string, log zerolog.Logger) *Server {
	store := NewStore(secret)
	hub := NewHub(store, log)
	go hub.Run()

	s := &Server{store: store, hub: hub, log: log}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Get("/uploads/{id}", s.handleDownload)

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/ws", s.handleWs)
		r.Get("/api/conversations", s.handleListConversations)
		r.Post("/api/conversations", s.handleStartConversation)
		r.Get("/api/messages", s.handleMessages)
		r.Post("/api/messages", s.handleSend)
		r.Post("/api/upload", s.handleUpload)
	})

	s.router = r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

// auth validates the bearer token (header, or ?token= for websocket clients
// that cannot set headers) and injects the identity into the context.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			http.Error(w, "missing authentication token", http.StatusUnauthorized)
			return
		}

		userID, username, err := s.store.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, userID)
		ctx = context.WithValue(ctx, usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) (string, string, bool) {
	userID, ok := r.Context().Value(userKey).(string)
	username, ok2 := r.Context().Value(usernameKey).(string)
	return userID, username, ok && ok2
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := s.store.Register(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrExists) {
			http.Error(w, "username taken", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": u.ID, "username": u.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := s.store.Authenticate(req.Username, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := s.store.IssueToken(u)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(api.AuthResponse{AccessToken: token, ID: u.ID, Username: u.Username})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	convs := s.store.ConversationsFor(userID)
	if convs == nil {
		convs = []model.Conversation{}
	}
	json.NewEncoder(w).Encode(convs)
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		PartnerID string `json:"partner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PartnerID == "" {
		http.Error(w, "partner_id required", http.StatusBadRequest)
		return
	}
	conv := s.store.StartConversation(userID, req.PartnerID)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conv)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := identityFrom(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	convID := r.URL.Query().Get("conversation_id")
	msgs, err := s.store.Messages(convID)
	if err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	json.NewEncoder(w).Encode(msgs)
}

// handleSend is the authoritative persistence path. The room fanout of
// message:new rides on the sender's channel emit; this handler only pushes
// conversation:updated so badge state stays fresh for participants that are
// not in the room.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		ConversationID string          `json:"conversation_id"`
		Content        string          `json:"content"`
		File           *model.FileMeta `json:"file,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" && req.File == nil {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}

	msg, err := s.store.AppendMessage(req.ConversationID, userID, req.Content, req.File)
	if err != nil {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}

	a, b, ok := s.store.participants(req.ConversationID)
	if ok {
		preview := msg.Content
		if preview == "" {
			preview = msg.FileName
		}
		update := model.ConversationUpdatedPayload{
			ConversationID: req.ConversationID,
			LastMessage:    preview,
		}
		s.hub.SendToUser(a, model.EventConversationUpdated, update)
		s.hub.SendToUser(b, model.EventConversationUpdated, update)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := identityFrom(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	meta := s.store.SaveFile(header.Filename, data)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(meta)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.store.File(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	w.Write(data)
}

func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		username: username,
		log:      s.log.With().Str("user", username).Logger(),
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}
