// Package webhook exposes the intake flow over plain HTTP for channels
// that have no streaming connector. Each request carries one user turn
// and the response carries the bot's replies, so callers need no
// outbound delivery path of their own.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/taborda-io/taborda/internal/config"
	"github.com/taborda-io/taborda/internal/connector"
)

const maxBodyBytes = 64 * 1024

// ProcessFunc runs one inbound turn, delivering replies through out.
type ProcessFunc func(ctx context.Context, out connector.Sender, msg connector.InboundMessage) error

// Handler serves POST /api/webhook/{name} for every configured endpoint.
type Handler struct {
	endpoints map[string]config.WebhookEndpoint
	process   ProcessFunc
	logger    *slog.Logger
}

// New creates a webhook handler for the given endpoints.
func New(endpoints map[string]config.WebhookEndpoint, process ProcessFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{endpoints: endpoints, process: process, logger: logger}
}

type inboundRequest struct {
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	Text     string `json:"text"`
}

type inboundResponse struct {
	Replies []string `json:"replies"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	endpoint, ok := h.endpoints[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown endpoint")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := authorize(r, endpoint, body); err != nil {
		h.logger.Warn("webhook auth rejected", "endpoint", name, "error", err)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req inboundRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	if req.SenderID == "" {
		req.SenderID = req.ChatID
	}

	collector := &replyCollector{}
	msg := connector.InboundMessage{
		Channel:  "webhook:" + name,
		SenderID: req.SenderID,
		ChatID:   req.ChatID,
		Text:     req.Text,
		IsDirect: true,
	}

	if err := h.process(r.Context(), collector, msg); err != nil {
		h.logger.Error("webhook turn failed", "endpoint", name, "chat", req.ChatID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(inboundResponse{Replies: collector.replies()})
}

// authorize checks the endpoint's HMAC signature when a secret is set,
// otherwise the bearer token.
func authorize(r *http.Request, endpoint config.WebhookEndpoint, body []byte) error {
	if endpoint.Secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			return fmt.Errorf("missing X-Hub-Signature-256 header")
		}
		sig = strings.TrimPrefix(sig, "sha256=")

		mac := hmac.New(sha256.New, []byte(endpoint.Secret))
		mac.Write(body)
		want := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(sig), []byte(want)) {
			return fmt.Errorf("signature mismatch")
		}
		return nil
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token != endpoint.BearerToken {
		return fmt.Errorf("bad bearer token")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// replyCollector gathers outbound messages from one synchronous turn so
// they can be returned in the HTTP response.
type replyCollector struct {
	mu    sync.Mutex
	texts []string
}

var _ connector.InstantSender = (*replyCollector)(nil)

func (c *replyCollector) Send(_ context.Context, msg connector.OutboundMessage) error {
	c.mu.Lock()
	c.texts = append(c.texts, msg.Text)
	c.mu.Unlock()
	return nil
}

func (c *replyCollector) Typing(context.Context, string) error { return nil }

// Instant tells the processor the caller is waiting on this response.
func (c *replyCollector) Instant() {}

func (c *replyCollector) replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.texts == nil {
		return []string{}
	}
	return c.texts
}
