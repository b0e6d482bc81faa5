// Package handlers implements the HTTP handlers for the ModelRelay
// gateway: the streaming chat endpoint, the provider and tool listings,
// user settings, and chat history.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/modelrelay/modelrelay/gateway/internal/chat"
	"github.com/modelrelay/modelrelay/gateway/internal/provider"
	"github.com/modelrelay/modelrelay/gateway/internal/relay"
	"github.com/modelrelay/modelrelay/gateway/internal/store"
	"github.com/modelrelay/modelrelay/gateway/internal/tools"
	"github.com/modelrelay/modelrelay/gateway/internal/upstream"
	"github.com/modelrelay/modelrelay/gateway/pkg/contracts"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
	pkgmw "github.com/modelrelay/modelrelay/gateway/pkg/middleware"
	"github.com/rs/zerolog/log"
)

// defaultChatListLimit caps history listings without an explicit limit.
const defaultChatListLimit = 50

// Handlers holds all handler dependencies.
type Handlers struct {
	Store store.Store
	Chat  contracts.ChatService
}

// New creates a new Handlers instance with all dependencies.
func New(s store.Store, chatSvc contracts.ChatService) *Handlers {
	return &Handlers{
		Store: s,
		Chat:  chatSvc,
	}
}

// ── Chat ─────────────────────────────────────────────────────

// StreamChat runs one chat turn and relays the provider stream as SSE.
// Failures before the first chunk become plain JSON error responses;
// failures after it terminate the stream with an error event.
func (h *Handlers) StreamChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = pkgmw.GetUserID(r.Context())
	}

	writer, err := relay.NewWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	if err := h.Chat.Stream(r.Context(), &req, writer.Send); err != nil {
		status, msg := chatError(err)

		if !writer.Started() {
			if status >= 500 {
				log.Error().Err(err).Msg("Chat request failed")
			}
			respondError(w, status, msg)
			return
		}

		// Headers are out the door. A canceled context means the
		// consumer went away, which is a normal way to end a stream.
		if r.Context().Err() != nil {
			log.Debug().Msg("Chat consumer disconnected")
			return
		}
		log.Error().Err(err).Msg("Chat stream failed mid-flight")
		writer.Fail(msg)
		return
	}

	if err := writer.Done(); err != nil {
		log.Debug().Err(err).Msg("Chat consumer disconnected before [DONE]")
	}
}

// chatError maps a chat failure to an HTTP status and a client-safe
// message. Clients distinguish failure classes by status code.
func chatError(err error) (int, string) {
	var ve *chat.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Message
	}
	var ce *upstream.CallError
	if errors.As(err, &ce) {
		return ce.HTTPStatus(), ce.UserMessage()
	}
	return http.StatusInternalServerError, "Failed to process chat request"
}

// ── Catalog ──────────────────────────────────────────────────

// providerInfo is the public shape of a provider descriptor.
type providerInfo struct {
	ID            string `json:"id"`
	DefaultModel  string `json:"default_model"`
	SupportsTools bool   `json:"supports_tools"`
	RequiresKey   bool   `json:"requires_key"`
}

func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	descs := provider.List()
	out := make([]providerInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, providerInfo{
			ID:            d.ID,
			DefaultModel:  d.DefaultModel,
			SupportsTools: d.SupportsTools,
			RequiresKey:   d.RequiresKey,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) ListTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tools":        tools.Definitions(),
		"capabilities": tools.Capabilities(),
	})
}

// ── User Settings ────────────────────────────────────────────

func (h *Handlers) GetUserSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	settings, err := h.Store.GetUserSettings(r.Context(), userID)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, settings.Redacted())
}

func (h *Handlers) PutUserSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		APIKeys map[string]string `json:"api_keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.APIKeys == nil {
		req.APIKeys = map[string]string{}
	}

	settings := &models.UserSettings{
		UserID:  userID,
		APIKeys: req.APIKeys,
	}
	if err := h.Store.PutUserSettings(r.Context(), settings); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("user", userID).Int("keys", len(req.APIKeys)).Msg("User settings updated")
	respondJSON(w, http.StatusOK, settings.Redacted())
}

func (h *Handlers) DeleteUserSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.Store.DeleteUserSettings(r.Context(), userID); err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	log.Info().Str("user", userID).Msg("User settings deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "user": userID})
}

// ── Chat History ─────────────────────────────────────────────

func (h *Handlers) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = pkgmw.GetUserID(r.Context())
	}

	filter := store.ListFilter{
		Limit:  queryInt(r, "limit", defaultChatListLimit),
		Offset: queryInt(r, "offset", 0),
	}

	records, err := h.Store.ListChatRecords(r.Context(), userID, filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []models.ChatRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
