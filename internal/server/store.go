// Package server is the in-memory development backend the chat client talks
// to: chi REST routes, a room-aware websocket hub and an in-memory store.
// It mirrors the production API surface so integration tests exercise the
// real wire path without external services.
package server

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"partychat/internal/identity"
	"partychat/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrBadCredential = errors.New("invalid credentials")
	ErrExists        = errors.New("already exists")
)

type User struct {
	ID       string
	Username string
	hash     []byte
}

type conversation struct {
	id        string
	a, b      string
	preview   string
	updatedAt time.Time
	unread    map[string]int // per participant id
}

func (c *conversation) summary(self string) model.Conversation {
	return model.Conversation{
		ID:                 c.id,
		ParticipantA:       c.a,
		ParticipantB:       c.b,
		LastMessagePreview: c.preview,
		UnreadCount:        c.unread[self],
		UpdatedAt:          c.updatedAt,
	}
}

type storedFile struct {
	name string
	data []byte
}

// Store holds all backend state in memory behind one mutex.
type Store struct {
	mu          sync.Mutex
	secret      []byte
	usersByName map[string]*User
	usersByID   map[string]*User
	convs       map[string]*conversation
	msgs        map[string][]model.Message
	files       map[string]storedFile
}

func NewStore(secret string) *Store {
	return &Store{
		secret:      []byte(secret),
		usersByName: make(map[string]*User),
		usersByID:   make(map[string]*User),
		convs:       make(map[string]*conversation),
		msgs:        make(map[string][]model.Message),
		files:       make(map[string]storedFile),
	}
}

func (s *Store) Register(username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByName[username]; ok {
		return nil, ErrExists
	}
	u := &User{ID: uuid.NewString(), Username: username, hash: hash}
	s.usersByName[username] = u
	s.usersByID[u.ID] = u
	return u, nil
}

func (s *Store) Authenticate(username, password string) (*User, error) {
	s.mu.Lock()
	u, ok := s.usersByName[username]
	s.mu.Unlock()
	if !ok {
		return nil, ErrBadCredential
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return nil, ErrBadCredential
	}
	return u, nil
}

func (s *Store) IssueToken(u *User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.Claims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "partychat-dev",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *Store) ValidateToken(tokenString string) (string, string, error) {
	claims := &identity.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrBadCredential
	}
	return claims.ID, claims.Username, nil
}

// StartConversation finds or creates the private conversation between the two
// participants.
func (s *Store) StartConversation(a, b string) model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.convs {
		if (c.a == a && c.b == b) || (c.a == b && c.b == a) {
			return c.summary(a)
		}
	}
	c := &conversation{
		id:        uuid.NewString(),
		a:         a,
		b:         b,
		updatedAt: time.Now(),
		unread:    map[string]int{a: 0, b: 0},
	}
	s.convs[c.id] = c
	return c.summary(a)
}

// ConversationsFor lists the summaries visible to one participant, most
// recently updated first.
func (s *Store) ConversationsFor(userID string) []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Conversation
	for _, c := range s.convs {
		if c.a == userID || c.b == userID {
			out = append(out, c.summary(userID))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (s *Store) participants(convID string) (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[convID]
	if !ok {
		return "", "", false
	}
	return c.a, c.b, true
}

// Messages returns the history page ordered ascending by creation time.
func (s *Store) Messages(convID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[convID]; !ok {
		return nil, ErrNotFound
	}
	msgs := s.msgs[convID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendMessage persists a message, assigns the server id and timestamp,
// refreshes the conversation preview and bumps the partner's unread counter.
func (s *Store) AppendMessage(convID, senderID, content string, file *model.FileMeta) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[convID]
	if !ok {
		return model.Message{}, ErrNotFound
	}
	if c.a != senderID && c.b != senderID {
		return model.Message{}, ErrNotFound
	}

	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Type:           model.TypeText,
		CreatedAt:      time.Now(),
		Status:         model.StatusSent,
	}
	if file != nil {
		msg.FileName = file.Name
		msg.FileSize = file.Size
		msg.FileURL = file.URL
		msg.Type = model.TypeFile
		switch strings.ToLower(filepath.Ext(file.Name)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			msg.Type = model.TypeImage
		}
	}
	s.msgs[convID] = append(s.msgs[convID], msg)

	c.preview = content
	if c.preview == "" {
		c.preview = msg.FileName
	}
	c.updatedAt = msg.CreatedAt
	partner := c.a
	if partner == senderID {
		partner = c.b
	}
	c.unread[partner]++
	return msg, nil
}

// MarkRead clears the unread counter for one participant.
func (s *Store) MarkRead(convID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[convID]; ok {
		c.unread[userID] = 0
	}
}

// SaveFile stores an upload and returns the metadata the send flow embeds.
func (s *Store) SaveFile(name string, data []byte) model.FileMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.files[id] = storedFile{name: name, data: data}
	return model.FileMeta{
		URL:  "/uploads/" + id,
		Name: name,
		Size: int64(len(data)),
	}
}

func (s *Store) File(id string) (string, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	return f.name, f.data, ok
}
