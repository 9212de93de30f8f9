package handlers

import (
	"github.com/comunika-app/comunika-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AnnouncementHandler struct {
	announcements *services.AnnouncementService
	audit         *services.AuditService
}

func NewAnnouncementHandler(announcements *services.AnnouncementService, audit *services.AuditService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements, audit: audit}
}

func (h *AnnouncementHandler) List(c *fiber.Ctx) error {
	status := c.Query("status", "")
	var categoryID *uuid.UUID
	if raw := c.Query("category_id", ""); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "Invalid category_id")
		}
		categoryID = &id
	}

	announcements, err := h.announcements.List(status, categoryID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"announcements": announcements})
}

func (h *AnnouncementHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid announcement ID")
	}
	announcement, err := h.announcements.Get(id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"announcement": announcement})
}

func (h *AnnouncementHandler) Create(c *fiber.Ctx) error {
	var req services.AnnouncementInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	announcement, sync, err := h.announcements.Create(c.Context(), req)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "create", "announcements",
		map[string]interface{}{"announcement_id": announcement.ID, "status": announcement.Status, "synced": sync.Synced},
		c.IP(), c.Get("User-Agent"))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"announcement": announcement, "sync": sync})
}

func (h *AnnouncementHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid announcement ID")
	}
	var req services.AnnouncementUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	announcement, sync, err := h.announcements.Update(c.Context(), id, req)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "update", "announcements",
		map[string]interface{}{"announcement_id": id, "synced": sync.Synced}, c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{"announcement": announcement, "sync": sync})
}

func (h *AnnouncementHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid announcement ID")
	}

	sync, err := h.announcements.Delete(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "delete", "announcements",
		map[string]interface{}{"announcement_id": id, "synced": sync.Synced}, c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{"message": "Announcement deleted", "sync": sync})
}
