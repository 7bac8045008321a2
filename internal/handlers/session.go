package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"voltdesk/internal/models"
	"voltdesk/internal/session"
)

// SessionHandler serves the REST administration surface for sessions.
type SessionHandler struct {
	metadata    *session.Metadata
	cache       *session.Cache
	sessionsDir string
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(metadata *session.Metadata, cache *session.Cache, sessionsDir string) *SessionHandler {
	return &SessionHandler{
		metadata:    metadata,
		cache:       cache,
		sessionsDir: sessionsDir,
	}
}

// List returns active sessions ordered by last activity.
// GET /api/sessions?include_archived=true
func (h *SessionHandler) List(c *fiber.Ctx) error {
	includeArchived := c.QueryBool("include_archived", false)
	sessions, err := h.metadata.List(c.Context(), includeArchived)
	if err != nil {
		log.Printf("❌ [API] Failed to list sessions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}
	return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
}

// Get returns one session's row metadata plus its document content.
// GET /api/sessions/:id
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	info, err := h.metadata.Info(c.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}

	store, err := h.cache.Resolve(c.Context(), sessionID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session content",
		})
	}
	doc := store.Document()
	return c.JSON(models.SessionDetail{
		SessionInfo: *info,
		History:     doc.History,
		Products:    doc.Products,
	})
}

// Create mints a new empty session.
// POST /api/sessions
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	sessionID := uuid.New().String()
	if _, err := h.cache.Resolve(c.Context(), sessionID); err != nil {
		log.Printf("❌ [API] Failed to create session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session_id": sessionID})
}

// Rename changes a session's display name.
// PUT /api/sessions/:id/name
func (h *SessionHandler) Rename(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A non-empty name is required",
		})
	}

	err := h.metadata.Rename(c.Context(), c.Params("id"), body.Name)
	if errors.Is(err, session.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to rename session",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// Archive soft-deletes a session from listings.
// POST /api/sessions/:id/archive
func (h *SessionHandler) Archive(c *fiber.Ctx) error {
	err := h.metadata.Archive(c.Context(), c.Params("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to archive session",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// Clear drops a session's conversation history, keeping the session itself.
// POST /api/sessions/:id/clear
func (h *SessionHandler) Clear(c *fiber.Ctx) error {
	store, err := h.cache.Resolve(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}
	if err := store.ClearMessages(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear session",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// Delete removes a session across both backends.
// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	err := session.DeleteSession(c.Context(), h.metadata, h.sessionsDir, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	if err != nil {
		log.Printf("❌ [API] Failed to delete session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete session",
		})
	}
	h.cache.Evict(sessionID)
	return c.JSON(fiber.Map{"success": true})
}

// Hydrate reconciles on-disk session documents into the metadata table on
// demand, e.g. after dropping session files into place.
// POST /api/admin/hydrate
func (h *SessionHandler) Hydrate(c *fiber.Ctx) error {
	n, err := session.Hydrate(c.Context(), h.metadata, h.sessionsDir)
	if err != nil {
		log.Printf("❌ [API] Hydration failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Hydration failed",
		})
	}
	return c.JSON(fiber.Map{"reconciled": n})
}
