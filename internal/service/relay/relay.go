package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/quickpic/client/internal/model"
	"github.com/quickpic/client/internal/utils/log"
)

// Relay is a development stand-in for the production QuickPic server: the
// same routes and JSON shapes, all state in memory. It only ever sees
// opaque envelopes; it cannot read anything it stores.
type Relay struct {
	mu       sync.Mutex
	users    map[string]*account            // by username
	tokens   map[string]uuid.UUID           // access token -> user id
	refresh  map[string]uuid.UUID           // refresh token -> user id
	friends  map[uuid.UUID]map[uuid.UUID]bool
	requests map[uuid.UUID]*model.FriendRequest
	inbound  map[uuid.UUID][]model.RemoteMessage // by recipient user id
}

type account struct {
	model.User
	password string
}

func New() *Relay {
	return &Relay{
		users:    make(map[string]*account),
		tokens:   make(map[string]uuid.UUID),
		refresh:  make(map[string]uuid.UUID),
		friends:  make(map[uuid.UUID]map[uuid.UUID]bool),
		requests: make(map[uuid.UUID]*model.FriendRequest),
		inbound:  make(map[uuid.UUID][]model.RemoteMessage),
	}
}

// Router wires every route. Exposed separately from Run so tests can mount
// the relay on an httptest server.
func (s *Relay) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/auth/register", s.handleRegister()).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.handleLogin()).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleRefresh()).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", s.handleLogout()).Methods(http.MethodPost)
	r.HandleFunc("/friends", s.handleFriends()).Methods(http.MethodGet)
	r.HandleFunc("/friends/request", s.handleFriendRequest()).Methods(http.MethodPost)
	r.HandleFunc("/friends/requests", s.handlePendingRequests()).Methods(http.MethodGet)
	r.HandleFunc("/friends/accept", s.handleAcceptRequest()).Methods(http.MethodPost)
	r.HandleFunc("/messages", s.handleSendMessage()).Methods(http.MethodPost)
	r.HandleFunc("/messages", s.handleFetchMessages()).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/ack", s.handleAckMessage()).Methods(http.MethodPost)
	return r
}

func (s *Relay) Run(addr string) error {
	log.Info("relay listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Router())
}

func (s *Relay) handleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username   string `json:"username"`
			Password   string `json:"password"`
			PublicKey  string `json:"public_key"`
			SigningKey string `json:"signing_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.users[req.Username]; exists {
			writeError(w, http.StatusConflict, "username taken")
			return
		}
		acct := &account{
			User: model.User{
				ID:         uuid.New(),
				Username:   req.Username,
				PublicKey:  req.PublicKey,
				SigningKey: req.SigningKey,
				CreatedAt:  time.Now().UTC(),
			},
			password: req.Password,
		}
		s.users[req.Username] = acct
		writeJSON(w, http.StatusCreated, s.issueTokensLocked(acct))
	}
}

func (s *Relay) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		acct, ok := s.users[req.Username]
		if !ok || acct.password != req.Password {
			writeError(w, http.StatusUnauthorized, "bad credentials")
			return
		}
		writeJSON(w, http.StatusOK, s.issueTokensLocked(acct))
	}
}

func (s *Relay) handleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		userID, ok := s.refresh[req.RefreshToken]
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		delete(s.refresh, req.RefreshToken)
		acct := s.accountByIDLocked(userID)
		if acct == nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		writeJSON(w, http.StatusOK, s.issueTokensLocked(acct))
	}
}

func (s *Relay) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.mu.Lock()
		delete(s.refresh, req.RefreshToken)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
	}
}

func (s *Relay) handleFriends() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		acct := s.authLocked(r)
		if acct == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		friends := []model.Peer{}
		for friendID := range s.friends[acct.ID] {
			if f := s.accountByIDLocked(friendID); f != nil {
				friends = append(friends, model.Peer{
					UserID:     f.ID,
					Username:   f.Username,
					PublicKey:  f.PublicKey,
					SigningKey: f.SigningKey,
					Since:      f.CreatedAt,
				})
			}
		}
		writeJSON(w, http.StatusOK, friends)
	}
}

func (s *Relay) handleFriendRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		acct := s.authLocked(r)
		if acct == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		target, ok := s.users[req.Username]
		if !ok {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		fr := &model.FriendRequest{
			ID:         uuid.New(),
			FromUserID: acct.ID,
			ToUserID:   target.ID,
			Status:     "pending",
			CreatedAt:  time.Now().UTC(),
			FromUser:   acct.User,
		}
		s.requests[fr.ID] = fr
		writeJSON(w, http.StatusCreated, fr)
	}
}

func (s *Relay) handlePendingRequests() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		acct := s.authLocked(r)
		if acct == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		pending := []model.FriendRequest{}
		for _, fr := range s.requests {
			if fr.ToUserID == acct.ID && fr.Status == "pending" {
				pending = append(pending, *fr)
			}
		}
		writeJSON(w, http.StatusOK, pending)
	}
}

func (s *Relay) handleAcceptRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RequestID string `json:"request_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		requestID, err := uuid.Parse(req.RequestID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request id")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		acct := s.authLocked(r)
		if acct == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		fr, ok := s.requests[requestID]
		if !ok || fr.ToUserID != acct.ID {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		fr.Status = "accepted"
		s.befriendLocked(fr.FromUserID, fr.ToUserID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "accepted"})
	}
}

func (s *Relay) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		acct := s.authLocked(r)
		if acct == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		target, ok := s.users[req.ToUsername]
		if !ok {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if !s.friends[acct.ID][target.ID] {
			writeError(w, http.StatusForbidden, "not friends")
			return
		}
		msg := model.RemoteMessage{
			ID:               uuid.New(),
			FromUserID:       acct.ID,
			ToUserID:         target.ID,
			EncryptedContent: req.EncryptedContent,
			ContentType:      req.ContentType,
			Signature:        req.Signature,
			CreatedAt:        time.Now().UTC(),
			FromUsername:     acct.Username,
			FromPublicKey:    acct.PublicKey,
			FromSigningKey:   acct.SigningKey,
		}
		s.inbound[target.ID] = append(s.inbound[target.ID], msg)
		writeJSON(w, http.StatusCreated, model.SendMessageResponse{ID: msg.ID, CreatedAt: msg.CreatedAt})
	}
}

func (s *Relay) handleFetchMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		acct := s.authLocked(r)
		if acct == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		msgs := s.inbound[acct.ID]
		if msgs == nil {
			msgs = []model.RemoteMessage{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func (s *Relay) handleAckMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid message id")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		acct := s.authLocked(r)
		if acct == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		// Idempotent: acking an already-deleted id succeeds.
		kept := s.inbound[acct.ID][:0]
		for _, msg := range s.inbound[acct.ID] {
			if msg.ID != id {
				kept = append(kept, msg)
			}
		}
		s.inbound[acct.ID] = kept
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	}
}

func (s *Relay) issueTokensLocked(acct *account) model.AuthResponse {
	access := uuid.NewString()
	refresh := uuid.NewString()
	s.tokens[access] = acct.ID
	s.refresh[refresh] = acct.ID
	return model.AuthResponse{AccessToken: access, RefreshToken: refresh, User: acct.User}
}

func (s *Relay) authLocked(r *http.Request) *account {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	userID, ok := s.tokens[token]
	if !ok {
		return nil
	}
	return s.accountByIDLocked(userID)
}

func (s *Relay) accountByIDLocked(id uuid.UUID) *account {
	for _, acct := range s.users {
		if acct.ID == id {
			return acct
		}
	}
	return nil
}

func (s *Relay) befriendLocked(a, b uuid.UUID) {
	if s.friends[a] == nil {
		s.friends[a] = make(map[uuid.UUID]bool)
	}
	if s.friends[b] == nil {
		s.friends[b] = make(map[uuid.UUID]bool)
	}
	s.friends[a][b] = true
	s.friends[b][a] = true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
