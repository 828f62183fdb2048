package fakeapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/agricare-client/internal/models"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRegisterRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	_, exists := s.users[req.Email]
	s.mu.Unlock()

	if exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}

	s.AddUser(req.Email, req.Password)

	s.mu.Lock()
	u := s.users[req.Email]
	u.userType = req.UserType
	s.mu.Unlock()

	s.respondTokens(w, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.AuthLoginRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Email]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	s.respondTokens(w, u)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	var req models.AuthRefreshRequest
	if !decode(w, r, &req) {
		return
	}

	if s.failRefresh.Load() {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	s.mu.Lock()
	uid, ok := s.refresh[req.RefreshToken]
	delete(s.refresh, req.RefreshToken)
	u := s.userByID(uid)
	s.mu.Unlock()

	if !ok || u == nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	s.respondTokens(w, u)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)

	var req models.AuthRefreshRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	delete(s.refresh, req.RefreshToken)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)

	s.mu.Lock()
	for tok, uid := range s.refresh {
		if uid == u.id {
			delete(s.refresh, tok)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out from all devices"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)

	writeJSON(w, http.StatusOK, models.UserInfo{
		ID:        u.id,
		Email:     u.email,
		IsActive:  true,
		CreatedAt: u.createdAt,
	})
}

// handlePredict отвечает классом, зависящим от имени файла: "healthy*" - здоровое растение.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer f.Close()

	n, _ := io.Copy(io.Discard, f)
	if n == 0 {
		writeDetail(w, http.StatusInternalServerError, "Prediction failed: empty image")
		return
	}

	class := "Tomato___Late_blight"
	if strings.HasPrefix(hdr.Filename, "healthy") {
		class = "Tomato___healthy"
	}

	writeJSON(w, http.StatusOK, models.PredictionResponse{PredictedClass: class, Confidence: 0.93, Success: true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !decode(w, r, &req) {
		return
	}

	u := userFrom(r)

	conv, status, detail := s.conversationFor(u, req.ConversationID, models.ConversationGeneral, "", "")
	if status != 0 {
		writeDetail(w, status, detail)
		return
	}

	answer := "Assistant: " + req.Message
	s.appendMessages(conv, req.Message, answer)

	writeJSON(w, http.StatusOK, models.ChatResponse{Response: answer, ConversationID: conv.ID})
}

func (s *Server) handlePredictionChat(w http.ResponseWriter, r *http.Request) {
	var req models.PredictionChatRequest
	if !decode(w, r, &req) {
		return
	}

	u := userFrom(r)

	conv, status, detail := s.conversationFor(u, req.ConversationID, models.ConversationPrediction, req.Crop, req.Disease)
	if status != 0 {
		writeDetail(w, status, detail)
		return
	}

	question := req.FollowUpMessage
	if question == "" {
		question = fmt.Sprintf("Detected %s in %s", req.Disease, req.Crop)
	}

	answer := fmt.Sprintf("About %s in %s: %s", req.Disease, req.Crop, question)
	s.appendMessages(conv, question, answer)

	writeJSON(w, http.StatusOK, models.ChatResponse{Response: answer, ConversationID: conv.ID})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)

	s.mu.Lock()
	out := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.userID == u.id {
			out = append(out, cloneConversation(c))
		}
	}
	s.mu.Unlock()

	// Новые сверху, как на бэкенде (updated_at desc).
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].UpdatedAt.After(out[j-1].UpdatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid conversation id")
		return
	}

	s.mu.Lock()
	c, ok := s.conversations[id]
	var out models.Conversation
	if ok && c.userID == u.id {
		out = cloneConversation(c)
	}
	s.mu.Unlock()

	if !ok || c.userID != u.id {
		writeDetail(w, http.StatusNotFound, "Conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) respondTokens(w http.ResponseWriter, u *user) {
	resp, err := s.issue(u)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// conversationFor находит диалог пользователя или создаёт новый.
// Ненулевой status - ответ об ошибке.
func (s *Server) conversationFor(u *user, id *int64, kind, crop, disease string) (*conversation, int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == nil {
		s.nextConvID++
		now := time.Now().UTC()
		c := &conversation{
			Conversation: models.Conversation{
				ID:               s.nextConvID,
				ConversationType: kind,
				Crop:             crop,
				Disease:          disease,
				CreatedAt:        now,
				UpdatedAt:        now,
			},
			userID: u.id,
		}
		s.conversations[c.ID] = c
		return c, 0, ""
	}

	c, ok := s.conversations[*id]
	if !ok || c.userID != u.id || c.ConversationType != kind ||
		(kind == models.ConversationPrediction && (c.Crop != crop || c.Disease != disease)) {
		return nil, http.StatusNotFound, "Conversation not found"
	}

	if len(c.Messages) >= MaxMessages {
		return nil, http.StatusBadRequest, fmt.Sprintf("Maximum number of messages (%d) reached for this conversation.", MaxMessages)
	}

	return c, 0, ""
}

func (s *Server) appendMessages(c *conversation, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	c.Messages = append(c.Messages,
		models.ChatMessage{Role: models.RoleUser, Content: question, CreatedAt: now},
		models.ChatMessage{Role: models.RoleAssistant, Content: answer, CreatedAt: now},
	)
	c.UpdatedAt = now
}

func cloneConversation(c *conversation) models.Conversation {
	out := c.Conversation
	out.Messages = append([]models.ChatMessage(nil), c.Messages...)

	return out
}
