package handlers

import (
	"github.com/comunika-app/comunika-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type UserHandler struct {
	users      *services.UserService
	sync       *services.UserSyncService
	membership *services.MembershipService
	audit      *services.AuditService
}

func NewUserHandler(users *services.UserService, sync *services.UserSyncService, membership *services.MembershipService, audit *services.AuditService) *UserHandler {
	return &UserHandler{users: users, sync: sync, membership: membership, audit: audit}
}

// actorID extracts the acting admin's id from the JWT, for audit records.
func actorID(c *fiber.Ctx) *uuid.UUID {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil
	}
	return &id
}

func (h *UserHandler) List(c *fiber.Ctx) error {
	users, err := h.users.ListUsers()
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"users": users})
}

func (h *UserHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	user, err := h.users.GetUser(id)
	if err != nil {
		return serviceError(c, err)
	}
	grants, err := h.users.ListPermissions(id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"user": user, "permissions": grants})
}

func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req services.UserInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, sync, err := h.users.CreateUser(c.Context(), req)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "create", "users",
		map[string]interface{}{"user_id": user.ID, "synced": sync.Synced}, c.IP(), c.Get("User-Agent"))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user, "sync": sync})
}

func (h *UserHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	var req services.UserUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, sync, err := h.users.UpdateUser(c.Context(), id, req)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "update", "users",
		map[string]interface{}{"user_id": id, "synced": sync.Synced}, c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{"user": user, "sync": sync})
}

func (h *UserHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}

	sync, err := h.users.DeleteUser(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "delete", "users",
		map[string]interface{}{"user_id": id, "synced": sync.Synced}, c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{"message": "User deleted", "sync": sync})
}

func (h *UserHandler) ReplacePermissions(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	var req struct {
		Grants []services.GrantInput `json:"grants"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	grants, sync, err := h.users.ReplacePermissions(c.Context(), id, req.Grants)
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "replace_permissions", "users",
		map[string]interface{}{"user_id": id, "grants": len(grants), "synced": sync.Synced}, c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{"permissions": grants, "sync": sync})
}

func (h *UserHandler) Sync(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	sync, err := h.sync.SyncUser(c.Context(), id, nil)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"sync": sync})
}

// Reconcile recomputes the user's channel memberships from their current
// grants, without touching the directory record.
func (h *UserHandler) Reconcile(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	report, err := h.membership.ReconcileUser(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"report": report, "sync": report.Sync()})
}

func (h *UserHandler) SyncAll(c *fiber.Ctx) error {
	report, err := h.sync.SyncAllUsers(c.Context())
	if err != nil {
		return serviceError(c, err)
	}
	h.audit.Record(actorID(c), "sync_all", "users",
		map[string]interface{}{"total": report.Total, "failed": report.Failed}, c.IP(), c.Get("User-Agent"))
	return c.JSON(report)
}
