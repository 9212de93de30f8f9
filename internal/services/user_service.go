package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/comunika-app/comunika-backend/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var validRoles = map[string]bool{"admin": true, "user": true}

// UserService owns user rows and permission grants, and drives the directory
// sync and membership reconciliation that every mutation implies.
type UserService struct {
	db         *gorm.DB
	sync       *UserSyncService
	membership *MembershipService
}

func NewUserService(db *gorm.DB, sync *UserSyncService, membership *MembershipService) *UserService {
	return &UserService{db: db, sync: sync, membership: membership}
}

type UserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

func (s *UserService) CreateUser(ctx context.Context, in UserInput) (*models.User, SyncResult, error) {
	if in.Name == "" || in.Email == "" {
		return nil, SyncResult{}, fmt.Errorf("name and email are required: %w", ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = "user"
	}
	if !validRoles[role] {
		return nil, SyncResult{}, fmt.Errorf("role must be admin or user: %w", ErrInvalidInput)
	}
	status := in.Status
	if status == "" {
		status = "active"
	}

	var existing models.User
	if err := s.db.Where("email = ?", in.Email).First(&existing).Error; err == nil {
		return nil, SyncResult{}, fmt.Errorf("email %q already registered: %w", in.Email, ErrConflict)
	}

	user := models.User{
		ID:     uuid.New(),
		Name:   in.Name,
		Email:  in.Email,
		Avatar: in.Avatar,
		Role:   role,
		Status: status,
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, SyncResult{}, fmt.Errorf("hashing password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	if err := s.db.Create(&user).Error; err != nil {
		return nil, SyncResult{}, fmt.Errorf("creating user: %w", err)
	}

	sync, err := s.sync.SyncUser(ctx, user.ID, &user)
	if err != nil {
		// The row is committed; surface the sync problem, not a failure.
		return &user, syncFailed(err), nil
	}
	if sync.Synced {
		// Reload to pick up the backfilled external id.
		if err := s.db.First(&user, "id = ?", user.ID).Error; err != nil {
			slog.Error("reloading user after sync", "module", "users", "user_id", user.ID.String(), "error", err)
		}
	}
	return &user, sync, nil
}

func (s *UserService) GetUser(id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &user, nil
}

func (s *UserService) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("name").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

type UserUpdate struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
	Role   *string `json:"role"`
	Status *string `json:"status"`
}

// UpdateUser applies a partial update, re-syncs the directory record with
// the freshly updated row (avoiding a stale re-read), and reconciles the
// user's channel memberships.
func (s *UserService) UpdateUser(ctx context.Context, id uuid.UUID, in UserUpdate) (*models.User, SyncResult, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return nil, SyncResult{}, err
	}
	if in.Role != nil && !validRoles[*in.Role] {
		return nil, SyncResult{}, fmt.Errorf("role must be admin or user: %w", ErrInvalidInput)
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
		user.Name = *in.Name
	}
	if in.Avatar != nil {
		updates["avatar"] = *in.Avatar
		user.Avatar = *in.Avatar
	}
	if in.Role != nil {
		updates["role"] = *in.Role
		user.Role = *in.Role
	}
	if in.Status != nil {
		updates["status"] = *in.Status
		user.Status = *in.Status
	}
	if len(updates) > 0 {
		if err := s.db.Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, SyncResult{}, fmt.Errorf("updating user: %w", err)
		}
	}

	sync, err := s.sync.SyncUser(ctx, id, user)
	if err != nil {
		sync = syncFailed(err)
	}
	report, err := s.membership.ReconcileUser(ctx, id)
	if err != nil {
		return user, mergeSync(sync, syncFailed(err)), nil
	}
	return user, mergeSync(sync, report.Sync()), nil
}

// DeleteUser removes the external record (best-effort) and soft-deletes the
// row along with its grants.
func (s *UserService) DeleteUser(ctx context.Context, id uuid.UUID) (SyncResult, error) {
	user, err := s.GetUser(id)
	if err != nil {
		return SyncResult{}, err
	}

	sync := s.sync.RemoveExternalUser(ctx, user)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.PermissionGrant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", id).Error
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("deleting user: %w", err)
	}
	return sync, nil
}

// GrantInput is one category's capability bundle in a permission replace.
type GrantInput struct {
	CategoryID             uuid.UUID `json:"category_id"`
	CanViewChat            bool      `json:"can_view_chat"`
	CanSendMessages        bool      `json:"can_send_messages"`
	CanViewAnnouncements   bool      `json:"can_view_announcements"`
	CanCreateAnnouncements bool      `json:"can_create_announcements"`
	CanModerate            bool      `json:"can_moderate"`
	CanDeleteMessages      bool      `json:"can_delete_messages"`
}

// ReplacePermissions swaps the user's whole grant set (delete-all then
// insert, in one transaction), then re-syncs the directory record and
// reconciles channel memberships. The grant replacement is the authoritative
// write; both follow-ups are secondary and reported through the SyncResult.
func (s *UserService) ReplacePermissions(ctx context.Context, userID uuid.UUID, grants []GrantInput) ([]models.PermissionGrant, SyncResult, error) {
	if grants == nil {
		return nil, SyncResult{}, fmt.Errorf("grants must be a list: %w", ErrInvalidInput)
	}
	if _, err := s.GetUser(userID); err != nil {
		return nil, SyncResult{}, err
	}

	seen := make(map[uuid.UUID]bool, len(grants))
	rows := make([]models.PermissionGrant, 0, len(grants))
	for _, g := range grants {
		if seen[g.CategoryID] {
			return nil, SyncResult{}, fmt.Errorf("duplicate category %s in grants: %w", g.CategoryID, ErrInvalidInput)
		}
		seen[g.CategoryID] = true
		rows = append(rows, models.PermissionGrant{
			UserID:                 userID,
			CategoryID:             g.CategoryID,
			CanViewChat:            g.CanViewChat,
			CanSendMessages:        g.CanSendMessages,
			CanViewAnnouncements:   g.CanViewAnnouncements,
			CanCreateAnnouncements: g.CanCreateAnnouncements,
			CanModerate:            g.CanModerate,
			CanDeleteMessages:      g.CanDeleteMessages,
		})
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.PermissionGrant{}).Error; err != nil {
			return fmt.Errorf("deleting grants: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("inserting grants: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, SyncResult{}, err
	}

	sync, err := s.sync.SyncUser(ctx, userID, nil)
	if err != nil {
		sync = syncFailed(err)
	}

	// Reconciliation runs even when the directory upsert failed: a revoked
	// grant must still remove the user from the affected channels.
	report, err := s.membership.ReconcileUser(ctx, userID)
	if err != nil {
		return rows, mergeSync(sync, syncFailed(err)), nil
	}
	return rows, mergeSync(sync, report.Sync()), nil
}

// ListPermissions returns the user's current grant set.
func (s *UserService) ListPermissions(userID uuid.UUID) ([]models.PermissionGrant, error) {
	var grants []models.PermissionGrant
	if err := s.db.Where("user_id = ?", userID).Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	return grants, nil
}
