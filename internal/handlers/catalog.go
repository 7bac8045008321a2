package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"voltdesk/internal/catalog"
)

// CatalogHandler serves the manual catalog administration surface.
type CatalogHandler struct {
	locator *catalog.Locator
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(locator *catalog.Locator) *CatalogHandler {
	return &CatalogHandler{locator: locator}
}

// List returns all catalog records.
// GET /api/products
func (h *CatalogHandler) List(c *fiber.Ctx) error {
	records, err := h.locator.List(c.Context())
	if err != nil {
		log.Printf("❌ [API] Failed to list products: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list products",
		})
	}
	return c.JSON(fiber.Map{"products": records, "count": len(records)})
}

// Upsert creates or updates a catalog record keyed by model number.
// POST /api/products
func (h *CatalogHandler) Upsert(c *fiber.Ctx) error {
	var body struct {
		Name        string `json:"name"`
		ModelNumber string `json:"model_number"`
		ManualPath  string `json:"manual_path"`
		Keywords    string `json:"keywords"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" || body.ModelNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and model_number are required",
		})
	}

	id, err := h.locator.Upsert(c.Context(), &catalog.ManualRecord{
		Name:        body.Name,
		ModelNumber: body.ModelNumber,
		ManualPath:  body.ManualPath,
		Keywords:    body.Keywords,
		Description: body.Description,
	})
	if err != nil {
		log.Printf("❌ [API] Failed to upsert product: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save product",
		})
	}
	return c.JSON(fiber.Map{"id": id})
}

// Search resolves a free-text product reference against the catalog.
// GET /api/products/search?q=...
func (h *CatalogHandler) Search(c *fiber.Ctx) error {
	query := c.Query("q")
	record, err := h.locator.Find(c.Context(), query)
	if errors.Is(err, catalog.ErrInvalidQuery) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query contains no usable terms",
		})
	}
	if errors.Is(err, catalog.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No matching product",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}
	return c.JSON(fiber.Map{"product": record})
}
