package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/comunika-app/comunika-backend/internal/models"
	"github.com/comunika-app/comunika-backend/internal/stream"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChannelService owns the channel-category link table and the passthrough
// operations against the platform's channels. The link table is
// authoritative; the slug list mirrored into channel custom data is an
// eventually consistent convenience for client-side filtering.
type ChannelService struct {
	db          *gorm.DB
	client      stream.Client
	defaultType string
}

func NewChannelService(db *gorm.DB, client stream.Client, defaultType string) *ChannelService {
	return &ChannelService{db: db, client: client, defaultType: defaultType}
}

// RetagChannel replaces the channel's full category tag-set. An empty list
// detaches the channel from all categories, making it invisible to
// reconciliation. The delete and insert run in one transaction so there is
// no observable window with zero links. The external mirror push is
// best-effort only.
func (s *ChannelService) RetagChannel(ctx context.Context, channelType, channelID string, categoryIDs []uuid.UUID) ([]models.Category, SyncResult, error) {
	if categoryIDs == nil {
		return nil, SyncResult{}, fmt.Errorf("category_ids must be a list: %w", ErrInvalidInput)
	}
	ref := stream.ChannelRef(channelType, channelID)

	seen := make(map[uuid.UUID]bool, len(categoryIDs))
	links := make([]models.ChannelCategory, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		links = append(links, models.ChannelCategory{ChannelID: ref, CategoryID: id})
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", ref).Delete(&models.ChannelCategory{}).Error; err != nil {
			return fmt.Errorf("deleting existing links: %w", err)
		}
		if len(links) > 0 {
			if err := tx.Create(&links).Error; err != nil {
				return fmt.Errorf("inserting links: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, SyncResult{}, err
	}

	categories, err := s.ChannelCategories(ref)
	if err != nil {
		return nil, SyncResult{}, err
	}

	slugs := make([]string, 0, len(categories))
	for _, c := range categories {
		slugs = append(slugs, c.Slug)
	}

	sync := syncOK()
	if err := s.client.UpdateChannel(ctx, channelType, channelID, stream.ChannelUpdate{
		Custom: map[string]interface{}{"categories": slugs},
	}); err != nil {
		slog.Error("channel category mirror failed",
			"module", "channels", "channel_id", ref, "error", err)
		sync = syncFailed(err)
	}

	return categories, sync, nil
}

// ChannelCategories returns the categories currently linked to a channel.
func (s *ChannelService) ChannelCategories(channelRef string) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.
		Joins("JOIN channel_categories ON channel_categories.category_id = categories.id").
		Where("channel_categories.channel_id = ?", channelRef).
		Order("categories.sort_order, categories.slug").
		Find(&categories).Error
	if err != nil {
		return nil, fmt.Errorf("loading channel categories: %w", err)
	}
	return categories, nil
}

// ChannelWithCategories is a platform channel enriched with the category
// rows from the link table.
type ChannelWithCategories struct {
	stream.Channel
	Categories []models.Category `json:"categories"`
}

// ListChannels merges the live platform channel list with the relational
// link table.
func (s *ChannelService) ListChannels(ctx context.Context) ([]ChannelWithCategories, error) {
	channels, err := s.client.ListChannels(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	out := make([]ChannelWithCategories, 0, len(channels))
	for _, ch := range channels {
		categories, err := s.ChannelCategories(stream.ChannelRef(ch.Type, ch.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, ChannelWithCategories{Channel: ch, Categories: categories})
	}
	return out, nil
}

// CreateChannel creates the channel on the platform and, when category ids
// are supplied, tags it in the same call. An empty channel type falls back
// to the configured default.
func (s *ChannelService) CreateChannel(ctx context.Context, channelType, channelID, name, image string, categoryIDs []uuid.UUID) (*ChannelWithCategories, SyncResult, error) {
	if channelID == "" {
		return nil, SyncResult{}, fmt.Errorf("channel id is required: %w", ErrInvalidInput)
	}
	if channelType == "" {
		channelType = s.defaultType
	}
	update := stream.ChannelUpdate{}
	if name != "" {
		update.Name = &name
	}
	if image != "" {
		update.Image = &image
	}
	ch, err := s.client.CreateChannel(ctx, channelType, channelID, update, nil)
	if err != nil {
		return nil, SyncResult{}, fmt.Errorf("creating channel: %w", err)
	}

	result := &ChannelWithCategories{Channel: *ch, Categories: []models.Category{}}
	if categoryIDs == nil {
		return result, syncOK(), nil
	}

	categories, sync, err := s.RetagChannel(ctx, channelType, channelID, categoryIDs)
	if err != nil {
		return nil, SyncResult{}, err
	}
	result.Categories = categories
	return result, sync, nil
}

// UpdateChannel applies a partial update to the platform channel.
func (s *ChannelService) UpdateChannel(ctx context.Context, channelType, channelID string, name, image *string) SyncResult {
	err := s.client.UpdateChannel(ctx, channelType, channelID, stream.ChannelUpdate{Name: name, Image: image})
	if err != nil {
		slog.Error("channel update failed",
			"module", "channels", "channel_id", stream.ChannelRef(channelType, channelID), "error", err)
		return syncFailed(err)
	}
	return syncOK()
}

// DeleteChannel removes the platform channel and its category links. The
// link rows go first so a failed platform delete leaves the channel
// reachable but untagged, which reconciliation treats as invisible.
func (s *ChannelService) DeleteChannel(ctx context.Context, channelType, channelID string) (SyncResult, error) {
	ref := stream.ChannelRef(channelType, channelID)
	if err := s.db.Where("channel_id = ?", ref).Delete(&models.ChannelCategory{}).Error; err != nil {
		return SyncResult{}, fmt.Errorf("deleting channel links: %w", err)
	}
	if err := s.client.DeleteChannel(ctx, channelType, channelID); err != nil {
		slog.Error("channel delete failed", "module", "channels", "channel_id", ref, "error", err)
		return syncFailed(err), nil
	}
	return syncOK(), nil
}

// AddChannelMembers / RemoveChannelMembers / ListChannelMembers are direct
// passthroughs for explicit admin member management.

func (s *ChannelService) AddChannelMembers(ctx context.Context, channelType, channelID string, userIDs []string) SyncResult {
	if err := s.client.AddMembers(ctx, channelType, channelID, userIDs); err != nil {
		return syncFailed(err)
	}
	return syncOK()
}

func (s *ChannelService) RemoveChannelMembers(ctx context.Context, channelType, channelID string, userIDs []string) SyncResult {
	if err := s.client.RemoveMembers(ctx, channelType, channelID, userIDs); err != nil {
		return syncFailed(err)
	}
	return syncOK()
}

func (s *ChannelService) ListChannelMembers(ctx context.Context, channelType, channelID string) ([]stream.Member, error) {
	members, err := s.client.ListMembers(ctx, channelType, channelID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}
