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

// MembershipService keeps external channel memberships convergent with what
// the permission grants and channel-category links imply. It never stores
// membership state itself: the platform is the ground truth for "who is in
// this channel right now".
type MembershipService struct {
	db     *gorm.DB
	client stream.Client
}

func NewMembershipService(db *gorm.DB, client stream.Client) *MembershipService {
	return &MembershipService{db: db, client: client}
}

// ReconcileReport lists what one reconciliation pass changed. Errors holds
// one entry per channel whose add/remove failed; the pass continues past
// failures to converge as much as possible.
type ReconcileReport struct {
	ChannelsChecked int      `json:"channels_checked"`
	Added           []string `json:"added,omitempty"`
	Removed         []string `json:"removed,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

func (r ReconcileReport) Sync() SyncResult {
	if len(r.Errors) == 0 {
		return syncOK()
	}
	return SyncResult{Synced: false, Error: fmt.Sprintf("%d channel(s) failed to reconcile", len(r.Errors))}
}

// ReconcileUser makes the user's live channel memberships match their
// view-chat grants. A channel is desired when it is tagged with a category
// the user holds a view-chat grant for; untagged channels are invisible to
// reconciliation. Channels are processed one at a time so an add and a
// remove for the same channel can never race.
func (s *MembershipService) ReconcileUser(ctx context.Context, userID uuid.UUID) (ReconcileReport, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReconcileReport{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return ReconcileReport{}, fmt.Errorf("loading user: %w", err)
	}
	if user.ExternalID == nil {
		return ReconcileReport{}, fmt.Errorf("user %s has no external id: %w", userID, ErrNotFound)
	}
	externalID := *user.ExternalID

	viewable, err := s.viewChatCategoryIDs(userID)
	if err != nil {
		return ReconcileReport{}, err
	}

	channels, err := s.client.ListChannels(ctx, nil)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("listing channels: %w", err)
	}

	report := ReconcileReport{}
	for _, ch := range channels {
		report.ChannelsChecked++
		ref := stream.ChannelRef(ch.Type, ch.ID)

		desired, err := s.channelDesired(ref, viewable)
		if err != nil {
			return report, err
		}

		members, err := s.client.ListMembers(ctx, ch.Type, ch.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", ref, err))
			continue
		}
		isMember := false
		for _, m := range members {
			if m.UserID == externalID {
				isMember = true
				break
			}
		}

		switch {
		case desired && !isMember:
			if err := s.client.AddMembers(ctx, ch.Type, ch.ID, []string{externalID}); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", ref, err))
				continue
			}
			report.Added = append(report.Added, ref)
		case !desired && isMember:
			if err := s.client.RemoveMembers(ctx, ch.Type, ch.ID, []string{externalID}); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", ref, err))
				continue
			}
			report.Removed = append(report.Removed, ref)
		}
	}

	if len(report.Errors) > 0 {
		slog.Warn("membership reconciliation finished with errors",
			"module", "membership", "user_id", userID.String(), "errors", len(report.Errors))
	}
	return report, nil
}

// ReconcileChannel converges one channel's member list against every user who
// holds a view-chat grant for any of its categories. Used after retagging.
func (s *MembershipService) ReconcileChannel(ctx context.Context, channelType, channelID string) (ReconcileReport, error) {
	ref := stream.ChannelRef(channelType, channelID)

	var categoryIDs []uuid.UUID
	if err := s.db.Model(&models.ChannelCategory{}).
		Where("channel_id = ?", ref).
		Pluck("category_id", &categoryIDs).Error; err != nil {
		return ReconcileReport{}, fmt.Errorf("loading channel categories: %w", err)
	}

	// Users desired in the channel: any view-chat grant on a tagged
	// category, and an external identity to add.
	desired := make(map[string]bool)
	if len(categoryIDs) > 0 {
		var externalIDs []string
		tx := s.db.Model(&models.PermissionGrant{}).
			Joins("JOIN users ON users.id = permission_grants.user_id").
			Where("permission_grants.category_id IN ? AND permission_grants.can_view_chat = ?", categoryIDs, true).
			Where("users.external_id IS NOT NULL").
			Distinct().
			Pluck("users.external_id", &externalIDs)
		if tx.Error != nil {
			return ReconcileReport{}, fmt.Errorf("loading grant holders: %w", tx.Error)
		}
		for _, id := range externalIDs {
			desired[id] = true
		}
	}

	members, err := s.client.ListMembers(ctx, channelType, channelID)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("listing members of %s: %w", ref, err)
	}
	actual := make(map[string]bool, len(members))
	for _, m := range members {
		actual[m.UserID] = true
	}

	report := ReconcileReport{ChannelsChecked: 1}
	for id := range desired {
		if !actual[id] {
			if err := s.client.AddMembers(ctx, channelType, channelID, []string{id}); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("add %s: %v", id, err))
				continue
			}
			report.Added = append(report.Added, id)
		}
	}
	for id := range actual {
		if !desired[id] {
			if err := s.client.RemoveMembers(ctx, channelType, channelID, []string{id}); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("remove %s: %v", id, err))
				continue
			}
			report.Removed = append(report.Removed, id)
		}
	}
	return report, nil
}

func (s *MembershipService) viewChatCategoryIDs(userID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	if err := s.db.Model(&models.PermissionGrant{}).
		Where("user_id = ? AND can_view_chat = ?", userID, true).
		Pluck("category_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("loading view-chat grants: %w", err)
	}
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (s *MembershipService) channelDesired(channelRef string, viewable map[uuid.UUID]bool) (bool, error) {
	var ids []uuid.UUID
	if err := s.db.Model(&models.ChannelCategory{}).
		Where("channel_id = ?", channelRef).
		Pluck("category_id", &ids).Error; err != nil {
		return false, fmt.Errorf("loading links for %s: %w", channelRef, err)
	}
	for _, id := range ids {
		if viewable[id] {
			return true, nil
		}
	}
	return false, nil
}
