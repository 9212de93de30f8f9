package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/comunika-app/comunika-backend/internal/models"
	"github.com/comunika-app/comunika-backend/internal/stream"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnnouncementService orchestrates announcement state across the relational
// store and the per-category activity feeds. The relational row is the
// durable source of truth; the feed copies are projections repaired by the
// next update or republish when a push fails.
type AnnouncementService struct {
	db         *gorm.DB
	client     stream.Client
	categories *CategoryService
}

func NewAnnouncementService(db *gorm.DB, client stream.Client, categories *CategoryService) *AnnouncementService {
	return &AnnouncementService{db: db, client: client, categories: categories}
}

// AnnouncementView is an announcement with its resolved label sets.
type AnnouncementView struct {
	models.Announcement
	Categories  []models.Category   `json:"categories"`
	Importances []models.Importance `json:"importances"`
}

type AnnouncementInput struct {
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	Status        string         `json:"status"`
	Template      string         `json:"template"`
	CategoryIDs   []uuid.UUID    `json:"category_ids"`
	ImportanceIDs []uuid.UUID    `json:"importance_ids"`
	Attachments   datatypes.JSON `json:"attachments"`
	ImageURL      string         `json:"image_url"`
	LinkURL       string         `json:"link_url"`
	LinkText      string         `json:"link_text"`
}

// AnnouncementUpdate is a partial update; nil fields are untouched. A
// non-nil CategoryIDs or ImportanceIDs replaces the whole link set.
type AnnouncementUpdate struct {
	Title         *string         `json:"title"`
	Content       *string         `json:"content"`
	Status        *string         `json:"status"`
	Template      *string         `json:"template"`
	CategoryIDs   *[]uuid.UUID    `json:"category_ids"`
	ImportanceIDs *[]uuid.UUID    `json:"importance_ids"`
	Attachments   *datatypes.JSON `json:"attachments"`
	ImageURL      *string         `json:"image_url"`
	LinkURL       *string         `json:"link_url"`
	LinkText      *string         `json:"link_text"`
}

func validStatus(status string) bool {
	return status == models.AnnouncementDraft || status == models.AnnouncementPublished
}

// Create inserts the announcement and its category links, then fans out to
// the per-category feeds when the status is published. A failed link insert
// compensates by deleting the just-inserted row: an announcement with no
// category link is unreachable by any reader and must not survive. A failed
// feed publish does not roll anything back.
func (s *AnnouncementService) Create(ctx context.Context, in AnnouncementInput) (*AnnouncementView, SyncResult, error) {
	if in.Title == "" || in.Content == "" {
		return nil, SyncResult{}, fmt.Errorf("title and content are required: %w", ErrInvalidInput)
	}
	if len(in.CategoryIDs) == 0 {
		return nil, SyncResult{}, fmt.Errorf("at least one category is required: %w", ErrInvalidInput)
	}
	status := in.Status
	if status == "" {
		status = models.AnnouncementDraft
	}
	if !validStatus(status) {
		return nil, SyncResult{}, fmt.Errorf("status must be draft or published: %w", ErrInvalidInput)
	}

	categories, err := s.categories.ResolveCategories(in.CategoryIDs)
	if err != nil {
		return nil, SyncResult{}, err
	}
	if len(categories) == 0 {
		return nil, SyncResult{}, fmt.Errorf("invalid categories: %w", ErrInvalidInput)
	}
	importances, err := s.categories.ResolveImportances(in.ImportanceIDs)
	if err != nil {
		return nil, SyncResult{}, err
	}

	template := in.Template
	if template == "" {
		template = "hero"
	}

	announcement := models.Announcement{
		ID:          uuid.New(),
		Title:       in.Title,
		Content:     in.Content,
		Status:      status,
		Template:    template,
		Attachments: in.Attachments,
		ImageURL:    in.ImageURL,
		LinkURL:     in.LinkURL,
		LinkText:    in.LinkText,
	}
	if err := s.db.Create(&announcement).Error; err != nil {
		return nil, SyncResult{}, fmt.Errorf("creating announcement: %w", err)
	}

	if err := s.insertCategoryLinks(s.db, announcement.ID, categories); err != nil {
		// Compensate: an announcement without category links is
		// meaningless, so the row must not outlive the failure.
		if delErr := s.db.Delete(&models.Announcement{}, "id = ?", announcement.ID).Error; delErr != nil {
			slog.Error("announcement compensation delete failed",
				"module", "announcements", "announcement_id", announcement.ID.String(), "error", delErr)
		}
		return nil, SyncResult{}, fmt.Errorf("linking categories: %w", err)
	}

	if len(importances) > 0 {
		if err := s.insertImportanceLinks(s.db, announcement.ID, importances); err != nil {
			slog.Error("announcement importance links failed",
				"module", "announcements", "announcement_id", announcement.ID.String(), "error", err)
		}
	}

	sync := syncOK()
	if announcement.IsPublished() {
		if err := s.publishToFeeds(ctx, &announcement, categories, importances); err != nil {
			slog.Error("feed publish failed",
				"module", "announcements", "announcement_id", announcement.ID.String(), "error", err)
			sync = syncFailed(err)
		}
	}

	return &AnnouncementView{Announcement: announcement, Categories: categories, Importances: importances}, sync, nil
}

// Update applies a partial update. When the category set changes on a
// published announcement, the activity is removed from the old feeds before
// it is published to the new ones, so the same announcement never appears
// under old and new feed sets at once.
func (s *AnnouncementService) Update(ctx context.Context, id uuid.UUID, in AnnouncementUpdate) (*AnnouncementView, SyncResult, error) {
	announcement, oldCategories, oldImportances, err := s.load(id)
	if err != nil {
		return nil, SyncResult{}, err
	}
	wasPublished := announcement.IsPublished()

	if in.Status != nil && !validStatus(*in.Status) {
		return nil, SyncResult{}, fmt.Errorf("status must be draft or published: %w", ErrInvalidInput)
	}

	newCategories := oldCategories
	if in.CategoryIDs != nil {
		newCategories, err = s.categories.ResolveCategories(*in.CategoryIDs)
		if err != nil {
			return nil, SyncResult{}, err
		}
		if len(newCategories) == 0 {
			return nil, SyncResult{}, fmt.Errorf("invalid categories: %w", ErrInvalidInput)
		}
	}
	newImportances := oldImportances
	if in.ImportanceIDs != nil {
		newImportances, err = s.categories.ResolveImportances(*in.ImportanceIDs)
		if err != nil {
			return nil, SyncResult{}, err
		}
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = *in.Title
	}
	if in.Content != nil {
		updates["content"] = *in.Content
	}
	if in.Status != nil {
		updates["status"] = *in.Status
	}
	if in.Template != nil {
		updates["template"] = *in.Template
	}
	if in.Attachments != nil {
		updates["attachments"] = *in.Attachments
	}
	if in.ImageURL != nil {
		updates["image_url"] = *in.ImageURL
	}
	if in.LinkURL != nil {
		updates["link_url"] = *in.LinkURL
	}
	if in.LinkText != nil {
		updates["link_text"] = *in.LinkText
	}
	if len(updates) > 0 {
		if err := s.db.Model(&models.Announcement{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, SyncResult{}, fmt.Errorf("updating announcement: %w", err)
		}
	}
	applyAnnouncementUpdate(announcement, in)

	if in.CategoryIDs != nil {
		if err := s.replaceCategoryLinks(id, newCategories); err != nil {
			return nil, SyncResult{}, err
		}
	}
	if in.ImportanceIDs != nil {
		if err := s.replaceImportanceLinks(id, newImportances); err != nil {
			return nil, SyncResult{}, err
		}
	}

	willBePublished := announcement.IsPublished()

	sync := syncOK()
	// Remove from the old feeds before publishing to the new ones. If the
	// remove fails, the publish is skipped for this invocation; the stable
	// activity id means the next update repairs the projection.
	if wasPublished && len(oldCategories) > 0 {
		if err := s.client.RemoveActivity(ctx, stream.ActivityID(id.String())); err != nil {
			slog.Error("feed removal failed",
				"module", "announcements", "announcement_id", id.String(), "error", err)
			return s.view(announcement, newCategories, newImportances), syncFailed(err), nil
		}
	}
	if willBePublished && len(newCategories) > 0 {
		if err := s.publishToFeeds(ctx, announcement, newCategories, newImportances); err != nil {
			slog.Error("feed publish failed",
				"module", "announcements", "announcement_id", id.String(), "error", err)
			sync = syncFailed(err)
		}
	}

	return s.view(announcement, newCategories, newImportances), sync, nil
}

// Delete removes the feed projection (best-effort) and then the relational
// row with its link rows.
func (s *AnnouncementService) Delete(ctx context.Context, id uuid.UUID) (SyncResult, error) {
	announcement, categories, _, err := s.load(id)
	if err != nil {
		return SyncResult{}, err
	}

	sync := syncOK()
	if announcement.IsPublished() && len(categories) > 0 {
		if err := s.client.RemoveActivity(ctx, stream.ActivityID(id.String())); err != nil {
			slog.Error("feed removal failed",
				"module", "announcements", "announcement_id", id.String(), "error", err)
			sync = syncFailed(err)
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("announcement_id = ?", id).Delete(&models.AnnouncementCategory{}).Error; err != nil {
			return err
		}
		if err := tx.Where("announcement_id = ?", id).Delete(&models.AnnouncementImportance{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Announcement{}, "id = ?", id).Error
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("deleting announcement: %w", err)
	}
	return sync, nil
}

func (s *AnnouncementService) Get(id uuid.UUID) (*AnnouncementView, error) {
	announcement, categories, importances, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return s.view(announcement, categories, importances), nil
}

// List returns announcements newest-first, optionally filtered by status
// and/or category.
func (s *AnnouncementService) List(status string, categoryID *uuid.UUID) ([]AnnouncementView, error) {
	query := s.db.Order("announcements.created_at DESC")
	if status != "" {
		if !validStatus(status) {
			return nil, fmt.Errorf("status must be draft or published: %w", ErrInvalidInput)
		}
		query = query.Where("status = ?", status)
	}
	if categoryID != nil {
		query = query.
			Joins("JOIN announcement_categories ON announcement_categories.announcement_id = announcements.id").
			Where("announcement_categories.category_id = ?", *categoryID)
	}

	var announcements []models.Announcement
	if err := query.Find(&announcements).Error; err != nil {
		return nil, fmt.Errorf("listing announcements: %w", err)
	}

	views := make([]AnnouncementView, 0, len(announcements))
	for i := range announcements {
		categories, importances, err := s.links(announcements[i].ID)
		if err != nil {
			return nil, err
		}
		views = append(views, *s.view(&announcements[i], categories, importances))
	}
	return views, nil
}

// --- internals ---

func applyAnnouncementUpdate(a *models.Announcement, in AnnouncementUpdate) {
	if in.Title != nil {
		a.Title = *in.Title
	}
	if in.Content != nil {
		a.Content = *in.Content
	}
	if in.Status != nil {
		a.Status = *in.Status
	}
	if in.Template != nil {
		a.Template = *in.Template
	}
	if in.Attachments != nil {
		a.Attachments = *in.Attachments
	}
	if in.ImageURL != nil {
		a.ImageURL = *in.ImageURL
	}
	if in.LinkURL != nil {
		a.LinkURL = *in.LinkURL
	}
	if in.LinkText != nil {
		a.LinkText = *in.LinkText
	}
}

func (s *AnnouncementService) view(a *models.Announcement, categories []models.Category, importances []models.Importance) *AnnouncementView {
	if categories == nil {
		categories = []models.Category{}
	}
	if importances == nil {
		importances = []models.Importance{}
	}
	return &AnnouncementView{Announcement: *a, Categories: categories, Importances: importances}
}

func (s *AnnouncementService) load(id uuid.UUID) (*models.Announcement, []models.Category, []models.Importance, error) {
	var announcement models.Announcement
	if err := s.db.First(&announcement, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, fmt.Errorf("announcement %s: %w", id, ErrNotFound)
		}
		return nil, nil, nil, fmt.Errorf("loading announcement: %w", err)
	}
	categories, importances, err := s.links(id)
	if err != nil {
		return nil, nil, nil, err
	}
	return &announcement, categories, importances, nil
}

func (s *AnnouncementService) links(id uuid.UUID) ([]models.Category, []models.Importance, error) {
	var categories []models.Category
	err := s.db.
		Joins("JOIN announcement_categories ON announcement_categories.category_id = categories.id").
		Where("announcement_categories.announcement_id = ?", id).
		Order("categories.sort_order, categories.slug").
		Find(&categories).Error
	if err != nil {
		return nil, nil, fmt.Errorf("loading announcement categories: %w", err)
	}

	var importances []models.Importance
	err = s.db.
		Joins("JOIN announcement_importances ON announcement_importances.importance_id = importances.id").
		Where("announcement_importances.announcement_id = ?", id).
		Order("importances.sort_order, importances.slug").
		Find(&importances).Error
	if err != nil {
		return nil, nil, fmt.Errorf("loading announcement importances: %w", err)
	}
	return categories, importances, nil
}

func (s *AnnouncementService) insertCategoryLinks(db *gorm.DB, id uuid.UUID, categories []models.Category) error {
	links := make([]models.AnnouncementCategory, 0, len(categories))
	for _, c := range categories {
		links = append(links, models.AnnouncementCategory{AnnouncementID: id, CategoryID: c.ID})
	}
	return db.Create(&links).Error
}

func (s *AnnouncementService) insertImportanceLinks(db *gorm.DB, id uuid.UUID, importances []models.Importance) error {
	links := make([]models.AnnouncementImportance, 0, len(importances))
	for _, imp := range importances {
		links = append(links, models.AnnouncementImportance{AnnouncementID: id, ImportanceID: imp.ID})
	}
	return db.Create(&links).Error
}

// replaceCategoryLinks is delete-all-then-insert in one transaction, the
// same replace-all discipline as the channel tagger.
func (s *AnnouncementService) replaceCategoryLinks(id uuid.UUID, categories []models.Category) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("announcement_id = ?", id).Delete(&models.AnnouncementCategory{}).Error; err != nil {
			return fmt.Errorf("deleting category links: %w", err)
		}
		if len(categories) == 0 {
			return nil
		}
		if err := s.insertCategoryLinks(tx, id, categories); err != nil {
			return fmt.Errorf("inserting category links: %w", err)
		}
		return nil
	})
}

func (s *AnnouncementService) replaceImportanceLinks(id uuid.UUID, importances []models.Importance) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("announcement_id = ?", id).Delete(&models.AnnouncementImportance{}).Error; err != nil {
			return fmt.Errorf("deleting importance links: %w", err)
		}
		if len(importances) == 0 {
			return nil
		}
		if err := s.insertImportanceLinks(tx, id, importances); err != nil {
			return fmt.Errorf("inserting importance links: %w", err)
		}
		return nil
	})
}

const feedTextLimit = 200

// publishToFeeds fans the announcement out to one global feed per category
// slug. Feeds are created on first use. The stable activity id makes
// republishing overwrite the previous copy instead of duplicating it.
func (s *AnnouncementService) publishToFeeds(ctx context.Context, a *models.Announcement, categories []models.Category, importances []models.Importance) error {
	feeds := make([]string, 0, len(categories))
	for _, c := range categories {
		if err := s.client.EnsureFeed(ctx, c.Slug, "global"); err != nil {
			return fmt.Errorf("ensuring feed %s: %w", stream.FeedRef(c.Slug), err)
		}
		feeds = append(feeds, stream.FeedRef(c.Slug))
	}

	text := a.Content
	if runes := []rune(text); len(runes) > feedTextLimit {
		text = string(runes[:feedTextLimit])
	}

	categoryRefs := make([]map[string]string, 0, len(categories))
	for _, c := range categories {
		categoryRefs = append(categoryRefs, map[string]string{"slug": c.Slug, "name": c.Name, "color": c.Color})
	}
	importanceRefs := make([]map[string]string, 0, len(importances))
	for _, imp := range importances {
		importanceRefs = append(importanceRefs, map[string]string{"slug": imp.Slug, "name": imp.Name, "color": imp.Color})
	}

	activityID, err := s.client.PublishActivity(ctx, stream.PublishActivityParams{
		ID:    stream.ActivityID(a.ID.String()),
		Feeds: feeds,
		Text:  text,
		Custom: map[string]interface{}{
			"title":        a.Title,
			"message":      text,
			"full_content": a.Content,
			"template":     a.Template,
			"image_url":    a.ImageURL,
			"link_url":     a.LinkURL,
			"link_text":    a.LinkText,
			"categories":   categoryRefs,
			"importances":  importanceRefs,
			"created_at":   a.CreatedAt,
		},
	})
	if err != nil {
		return err
	}

	if a.ExternalActivityID == nil || *a.ExternalActivityID != activityID {
		if err := s.db.Model(&models.Announcement{}).Where("id = ?", a.ID).
			Update("external_activity_id", activityID).Error; err != nil {
			slog.Error("recording activity id failed",
				"module", "announcements", "announcement_id", a.ID.String(), "error", err)
		} else {
			a.ExternalActivityID = &activityID
		}
	}
	return nil
}
