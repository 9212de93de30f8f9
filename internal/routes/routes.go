package routes

import (
	"time"

	"github.com/comunika-app/comunika-backend/internal/config"
	"github.com/comunika-app/comunika-backend/internal/handlers"
	"github.com/comunika-app/comunika-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	userHandler *handlers.UserHandler,
	categoryHandler *handlers.CategoryHandler,
	channelHandler *handlers.ChannelHandler,
	announcementHandler *handlers.AnnouncementHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 120 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               120,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Post("/logout", authHandler.Logout)

	// Everything below is the admin control plane.
	admin := api.Group("", middleware.JWTProtected(cfg), middleware.AdminRequired(db, cfg))

	users := admin.Group("/users")
	users.Get("/", userHandler.List)
	users.Post("/", userHandler.Create)
	users.Post("/sync-all", userHandler.SyncAll)
	users.Get("/:id", userHandler.Get)
	users.Patch("/:id", userHandler.Update)
	users.Delete("/:id", userHandler.Delete)
	users.Put("/:id/permissions", userHandler.ReplacePermissions)
	users.Post("/:id/sync", userHandler.Sync)
	users.Post("/:id/reconcile", userHandler.Reconcile)

	categories := admin.Group("/categories")
	categories.Get("/", categoryHandler.List)
	categories.Post("/", categoryHandler.Create)
	categories.Get("/:id", categoryHandler.Get)
	categories.Patch("/:id", categoryHandler.Update)
	categories.Delete("/:id", categoryHandler.Delete)

	importances := admin.Group("/importances")
	importances.Get("/", categoryHandler.ListImportances)
	importances.Post("/", categoryHandler.CreateImportance)
	importances.Patch("/:id", categoryHandler.UpdateImportance)
	importances.Delete("/:id", categoryHandler.DeleteImportance)

	channels := admin.Group("/channels")
	channels.Get("/", channelHandler.List)
	channels.Post("/", channelHandler.Create)
	channels.Patch("/:type/:id", channelHandler.Update)
	channels.Delete("/:type/:id", channelHandler.Delete)
	channels.Get("/:type/:id/categories", channelHandler.GetCategories)
	channels.Put("/:type/:id/categories", channelHandler.RetagCategories)
	channels.Get("/:type/:id/members", channelHandler.ListMembers)
	channels.Post("/:type/:id/members", channelHandler.AddMembers)
	channels.Delete("/:type/:id/members", channelHandler.RemoveMembers)

	announcements := admin.Group("/announcements")
	announcements.Get("/", announcementHandler.List)
	announcements.Post("/", announcementHandler.Create)
	announcements.Get("/:id", announcementHandler.Get)
	announcements.Patch("/:id", announcementHandler.Update)
	announcements.Delete("/:id", announcementHandler.Delete)
}
