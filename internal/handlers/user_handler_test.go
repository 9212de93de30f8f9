package handlers

import (
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/comunika-app/comunika-backend/internal/models"
	"github.com/comunika-app/comunika-backend/internal/services"
	"github.com/comunika-app/comunika-backend/internal/stream/streamtest"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

var handlerDBSeq int64

func newHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:handlers_test_%d?mode=memory&cache=shared", atomic.AddInt64(&handlerDBSeq, 1))
	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.PermissionGrant{},
		&models.ChannelCategory{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("migrating test schema: %v", err)
	}
	return db
}

func TestUserReconcileEndpoint(t *testing.T) {
	db := newHandlerTestDB(t)
	fake := streamtest.NewFake()
	sync := services.NewUserSyncService(db, fake)
	membership := services.NewMembershipService(db, fake)
	users := services.NewUserService(db, sync, membership)
	handler := NewUserHandler(users, sync, membership, services.NewAuditService(db))

	app := fiber.New()
	app.Post("/users/:id/reconcile", handler.Reconcile)

	ext := "ext-alice"
	user := &models.User{
		ID:         uuid.New(),
		Name:       "Alice",
		Email:      "alice@example.com",
		Role:       "user",
		Status:     "active",
		ExternalID: &ext,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	category := &models.Category{ID: uuid.New(), Slug: "cards", Name: "cards", Active: true}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("seeding category: %v", err)
	}
	grant := models.PermissionGrant{UserID: user.ID, CategoryID: category.ID, CanViewChat: true}
	if err := db.Create(&grant).Error; err != nil {
		t.Fatalf("seeding grant: %v", err)
	}
	fake.AddChannel("messaging", "cards-room")
	link := models.ChannelCategory{ChannelID: "messaging:cards-room", CategoryID: category.ID}
	if err := db.Create(&link).Error; err != nil {
		t.Fatalf("seeding channel link: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodPost, "/users/"+user.ID.String()+"/reconcile", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !fake.IsMember("messaging", "cards-room", ext) {
		t.Fatal("expected reconciliation to add the user to the channel")
	}

	req = httptest.NewRequest(fiber.MethodPost, "/users/"+uuid.NewString()+"/reconcile", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 for an unknown user, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/users/not-a-uuid/reconcile", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed id, got %d", resp.StatusCode)
	}
}
