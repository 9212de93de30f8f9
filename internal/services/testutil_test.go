package services

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/comunika-app/comunika-backend/internal/models"
	"github.com/comunika-app/comunika-backend/internal/stream/streamtest"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

var dbSeq int64

// newTestDB opens a fresh in-memory database with the full schema migrated.
// Each call gets its own database so tests stay independent.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:services_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
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
		&models.Importance{},
		&models.PermissionGrant{},
		&models.ChannelCategory{},
		&models.Announcement{},
		&models.AnnouncementCategory{},
		&models.AnnouncementImportance{},
		&models.AuditLog{},
		&models.SystemLog{},
		&models.RefreshToken{},
	); err != nil {
		t.Fatalf("migrating test schema: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) (*gorm.DB, *streamtest.Fake) {
	t.Helper()
	return newTestDB(t), streamtest.NewFake()
}

func seedUser(t *testing.T, db *gorm.DB, name string, externalID *string) *models.User {
	t.Helper()
	user := &models.User{
		ID:         uuid.New(),
		Name:       name,
		Email:      fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Role:       "user",
		Status:     "active",
		ExternalID: externalID,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seeding user %s: %v", name, err)
	}
	return user
}

func seedCategory(t *testing.T, db *gorm.DB, slug string) *models.Category {
	t.Helper()
	category := &models.Category{
		ID:     uuid.New(),
		Slug:   slug,
		Name:   slug,
		Active: true,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("seeding category %s: %v", slug, err)
	}
	return category
}

func seedGrant(t *testing.T, db *gorm.DB, userID, categoryID uuid.UUID, viewChat bool) {
	t.Helper()
	grant := models.PermissionGrant{
		UserID:      userID,
		CategoryID:  categoryID,
		CanViewChat: viewChat,
	}
	if err := db.Create(&grant).Error; err != nil {
		t.Fatalf("seeding grant: %v", err)
	}
}

func seedChannelLink(t *testing.T, db *gorm.DB, channelRef string, categoryID uuid.UUID) {
	t.Helper()
	link := models.ChannelCategory{ChannelID: channelRef, CategoryID: categoryID}
	if err := db.Create(&link).Error; err != nil {
		t.Fatalf("seeding channel link: %v", err)
	}
}

func strPtr(s string) *string { return &s }
