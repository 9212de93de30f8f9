package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/comunika-app/comunika-backend/internal/models"
	"github.com/comunika-app/comunika-backend/internal/stream"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserSyncService projects one relational user plus its permission grants
// into one external directory record.
type UserSyncService struct {
	db     *gorm.DB
	client stream.Client
}

func NewUserSyncService(db *gorm.DB, client stream.Client) *UserSyncService {
	return &UserSyncService{db: db, client: client}
}

// SyncUser creates or updates the external record for userID. A preloaded
// row may be passed to avoid a stale re-read right after an update; pass nil
// to load from the store. The external id is backfilled on first sync and
// never changed afterwards. External failures are reported in the SyncResult
// and never roll back the relational row that triggered the sync.
func (s *UserSyncService) SyncUser(ctx context.Context, userID uuid.UUID, preloaded *models.User) (SyncResult, error) {
	user := preloaded
	if user == nil {
		var loaded models.User
		if err := s.db.First(&loaded, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return SyncResult{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
			}
			return SyncResult{}, fmt.Errorf("loading user: %w", err)
		}
		user = &loaded
	}

	slugs, err := s.grantedCategorySlugs(userID)
	if err != nil {
		return SyncResult{}, err
	}

	externalID := user.ID.String()
	if user.ExternalID != nil {
		externalID = *user.ExternalID
	}

	err = s.client.UpsertUser(ctx, stream.UpsertUserParams{
		ID:    externalID,
		Name:  user.Name,
		Image: user.Avatar,
		Role:  user.Role,
		Custom: map[string]interface{}{
			"email":       user.Email,
			"internal_id": user.ID.String(),
			"categories":  slugs,
			"status":      user.Status,
		},
	})
	if err != nil {
		slog.Error("user directory sync failed", "module", "user_sync", "user_id", user.ID.String(), "error", err)
		return syncFailed(err), nil
	}

	if user.ExternalID == nil {
		if err := s.db.Model(&models.User{}).Where("id = ?", user.ID).
			Update("external_id", externalID).Error; err != nil {
			return SyncResult{}, fmt.Errorf("backfilling external id: %w", err)
		}
	}

	return syncOK(), nil
}

// grantedCategorySlugs returns the slug of every category the user holds any
// grant for. Presence of a grant row implies directory membership regardless
// of which capability booleans are set.
func (s *UserSyncService) grantedCategorySlugs(userID uuid.UUID) ([]string, error) {
	var slugs []string
	tx := s.db.Model(&models.PermissionGrant{}).
		Joins("JOIN categories ON categories.id = permission_grants.category_id").
		Where("permission_grants.user_id = ?", userID).
		Order("categories.slug").
		Pluck("categories.slug", &slugs)
	if tx.Error != nil {
		return nil, fmt.Errorf("loading permission grants: %w", tx.Error)
	}
	if slugs == nil {
		slugs = []string{}
	}
	return slugs, nil
}

// SweepReport aggregates a full-directory sync.
type SweepReport struct {
	Total  int      `json:"total"`
	Synced int      `json:"synced"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// SyncAllUsers re-syncs every active user. Per-user failures are collected;
// the sweep never aborts early.
func (s *UserSyncService) SyncAllUsers(ctx context.Context) (SweepReport, error) {
	var users []models.User
	if err := s.db.Where("status = ?", "active").Find(&users).Error; err != nil {
		return SweepReport{}, fmt.Errorf("loading active users: %w", err)
	}

	report := SweepReport{Total: len(users)}
	for i := range users {
		result, err := s.SyncUser(ctx, users[i].ID, &users[i])
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", users[i].Name, err))
			continue
		}
		if !result.Synced {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", users[i].Name, result.Error))
			continue
		}
		report.Synced++
	}
	return report, nil
}

// RemoveExternalUser hard-deletes the user's external record. Best-effort:
// used when the relational row is being retired.
func (s *UserSyncService) RemoveExternalUser(ctx context.Context, user *models.User) SyncResult {
	if user.ExternalID == nil {
		return syncOK()
	}
	if err := s.client.DeleteUser(ctx, *user.ExternalID, true); err != nil {
		slog.Error("external user delete failed", "module", "user_sync", "user_id", user.ID.String(), "error", err)
		return syncFailed(err)
	}
	return syncOK()
}
