package handlers

import (
	"github.com/comunika-app/comunika-backend/internal/dto"
	"github.com/comunika-app/comunika-backend/internal/services"
	"github.com/comunika-app/comunika-backend/internal/stream"
	"github.com/gofiber/fiber/v2"
)

type ChannelHandler struct {
	channels   *services.ChannelService
	membership *services.MembershipService
	audit      *services.AuditService
}

func NewChannelHandler(channels *services.ChannelService, membership *services.MembershipService, audit *services.AuditService) *ChannelHandler {
	return &ChannelHandler{channels: channels, membership: membership, audit: audit}
}

func (h *ChannelHandler) List(c *fiber.Ctx) error {
	channels, err := h.channels.ListChannels(c.Context())
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"channels": channels})
}

func (h *ChannelHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	channelType := c.Query("type")

	channel, sync, err := h.channels.CreateChannel(c.Context(), channelType, req.ID, req.Name, req.Image, req.CategoryIDs)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "create", "channels",
		map[string]interface{}{"channel_id": stream.ChannelRef(channelType, req.ID), "synced": sync.Synced},
		c.IP(), c.Get("User-Agent"))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"channel": channel, "sync": sync})
}

func (h *ChannelHandler) Update(c *fiber.Ctx) error {
	channelType, channelID := c.Params("type"), c.Params("id")
	var req dto.UpdateChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	sync := h.channels.UpdateChannel(c.Context(), channelType, channelID, req.Name, req.Image)
	h.audit.Record(actorID(c), "update", "channels",
		map[string]interface{}{"channel_id": stream.ChannelRef(channelType, channelID), "synced": sync.Synced},
		c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{"sync": sync})
}

func (h *ChannelHandler) Delete(c *fiber.Ctx) error {
	channelType, channelID := c.Params("type"), c.Params("id")

	sync, err := h.channels.DeleteChannel(c.Context(), channelType, channelID)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "delete", "channels",
		map[string]interface{}{"channel_id": stream.ChannelRef(channelType, channelID), "synced": sync.Synced},
		c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{"message": "Channel deleted", "sync": sync})
}

func (h *ChannelHandler) GetCategories(c *fiber.Ctx) error {
	channelType, channelID := c.Params("type"), c.Params("id")
	categories, err := h.channels.ChannelCategories(stream.ChannelRef(channelType, channelID))
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{
		"channel_id": stream.ChannelRef(channelType, channelID),
		"categories": categories,
	})
}

// RetagCategories replaces the channel's whole category set and then
// reconciles the channel's membership against the new tags.
func (h *ChannelHandler) RetagCategories(c *fiber.Ctx) error {
	channelType, channelID := c.Params("type"), c.Params("id")
	var req dto.RetagChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	categories, sync, err := h.channels.RetagChannel(c.Context(), channelType, channelID, req.CategoryIDs)
	if err != nil {
		return serviceError(c, err)
	}

	if report, err := h.membership.ReconcileChannel(c.Context(), channelType, channelID); err == nil {
		if !report.Sync().Synced && sync.Synced {
			sync = report.Sync()
		}
	}

	h.audit.Record(actorID(c), "retag", "channels",
		map[string]interface{}{"channel_id": stream.ChannelRef(channelType, channelID), "categories": len(categories)},
		c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"channel_id": stream.ChannelRef(channelType, channelID),
		"categories": categories,
		"sync":       sync,
	})
}

func (h *ChannelHandler) ListMembers(c *fiber.Ctx) error {
	channelType, channelID := c.Params("type"), c.Params("id")
	members, err := h.channels.ListChannelMembers(c.Context(), channelType, channelID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"members": members})
}

func (h *ChannelHandler) AddMembers(c *fiber.Ctx) error {
	channelType, channelID := c.Params("type"), c.Params("id")
	var req dto.ChannelMembersRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if len(req.UserIDs) == 0 {
		return badRequest(c, "user_ids is required")
	}
	sync := h.channels.AddChannelMembers(c.Context(), channelType, channelID, req.UserIDs)
	return c.JSON(fiber.Map{"sync": sync})
}

func (h *ChannelHandler) RemoveMembers(c *fiber.Ctx) error {
	channelType, channelID := c.Params("type"), c.Params("id")
	var req dto.ChannelMembersRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if len(req.UserIDs) == 0 {
		return badRequest(c, "user_ids is required")
	}
	sync := h.channels.RemoveChannelMembers(c.Context(), channelType, channelID, req.UserIDs)
	return c.JSON(fiber.Map{"sync": sync})
}
