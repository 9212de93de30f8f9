package handlers

import (
	"github.com/comunika-app/comunika-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CategoryHandler struct {
	categories *services.CategoryService
	audit      *services.AuditService
}

func NewCategoryHandler(categories *services.CategoryService, audit *services.AuditService) *CategoryHandler {
	return &CategoryHandler{categories: categories, audit: audit}
}

func (h *CategoryHandler) List(c *fiber.Ctx) error {
	includeInactive := c.QueryBool("include_inactive", false)
	categories, err := h.categories.ListCategories(includeInactive)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"categories": categories})
}

func (h *CategoryHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid category ID")
	}
	category, err := h.categories.GetCategory(id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"category": category})
}

func (h *CategoryHandler) Create(c *fiber.Ctx) error {
	var req services.CategoryInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	category, err := h.categories.CreateCategory(req)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "create", "categories",
		map[string]interface{}{"category_id": category.ID, "slug": category.Slug}, c.IP(), c.Get("User-Agent"))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"category": category})
}

func (h *CategoryHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid category ID")
	}
	var req services.CategoryUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	category, err := h.categories.UpdateCategory(id, req)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "update", "categories",
		map[string]interface{}{"category_id": id}, c.IP(), c.Get("User-Agent"))
	return c.JSON(fiber.Map{"category": category})
}

func (h *CategoryHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid category ID")
	}
	if err := h.categories.DeactivateCategory(id); err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "deactivate", "categories",
		map[string]interface{}{"category_id": id}, c.IP(), c.Get("User-Agent"))
	return c.JSON(fiber.Map{"message": "Category deactivated"})
}

// --- importance levels ---

func (h *CategoryHandler) ListImportances(c *fiber.Ctx) error {
	importances, err := h.categories.ListImportances()
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"importances": importances})
}

func (h *CategoryHandler) CreateImportance(c *fiber.Ctx) error {
	var req services.ImportanceInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	importance, err := h.categories.CreateImportance(req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"importance": importance})
}

func (h *CategoryHandler) UpdateImportance(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid importance ID")
	}
	var req services.ImportanceUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	importance, err := h.categories.UpdateImportance(id, req)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"importance": importance})
}

func (h *CategoryHandler) DeleteImportance(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid importance ID")
	}
	if err := h.categories.DeleteImportance(id); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Importance deleted"})
}
