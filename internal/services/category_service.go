package services

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/comunika-app/comunika-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// CategoryService is plain CRUD over categories and importance levels.
// Categories are never hard-deleted: grants, links and announcements
// reference them by id, so deletion flips Active instead.
type CategoryService struct {
	db *gorm.DB
}

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{db: db}
}

type CategoryInput struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
	SortOrder   int    `json:"sort_order"`
}

func (s *CategoryService) CreateCategory(in CategoryInput) (*models.Category, error) {
	if in.Slug == "" || in.Name == "" {
		return nil, fmt.Errorf("slug and name are required: %w", ErrInvalidInput)
	}
	if !slugPattern.MatchString(in.Slug) {
		return nil, fmt.Errorf("slug must be lowercase letters, digits and hyphens: %w", ErrInvalidInput)
	}

	var existing models.Category
	if err := s.db.Where("slug = ?", in.Slug).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("slug %q already exists: %w", in.Slug, ErrConflict)
	}

	category := models.Category{
		ID:          uuid.New(),
		Slug:        in.Slug,
		Name:        in.Name,
		Description: in.Description,
		Color:       in.Color,
		Icon:        in.Icon,
		Active:      true,
		SortOrder:   in.SortOrder,
	}
	if err := s.db.Create(&category).Error; err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}
	return &category, nil
}

func (s *CategoryService) GetCategory(id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := s.db.First(&category, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading category: %w", err)
	}
	return &category, nil
}

func (s *CategoryService) ListCategories(includeInactive bool) ([]models.Category, error) {
	var categories []models.Category
	query := s.db.Order("sort_order, slug")
	if !includeInactive {
		query = query.Where("active = ?", true)
	}
	if err := query.Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}

// CategoryUpdate carries the partial update; nil fields are untouched. The
// slug is immutable and deliberately absent.
type CategoryUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
	Icon        *string `json:"icon"`
	Active      *bool   `json:"active"`
	SortOrder   *int    `json:"sort_order"`
}

func (s *CategoryService) UpdateCategory(id uuid.UUID, in CategoryUpdate) (*models.Category, error) {
	category, err := s.GetCategory(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Color != nil {
		updates["color"] = *in.Color
	}
	if in.Icon != nil {
		updates["icon"] = *in.Icon
	}
	if in.Active != nil {
		updates["active"] = *in.Active
	}
	if in.SortOrder != nil {
		updates["sort_order"] = *in.SortOrder
	}
	if len(updates) == 0 {
		return category, nil
	}

	if err := s.db.Model(category).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("updating category: %w", err)
	}
	return category, nil
}

// DeactivateCategory is the delete operation: soft only.
func (s *CategoryService) DeactivateCategory(id uuid.UUID) error {
	result := s.db.Model(&models.Category{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("deactivating category: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return nil
}

// ResolveCategories maps ids to rows, keeping only those that exist.
func (s *CategoryService) ResolveCategories(ids []uuid.UUID) ([]models.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var categories []models.Category
	if err := s.db.Where("id IN ?", ids).Order("sort_order, slug").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("resolving categories: %w", err)
	}
	return categories, nil
}

// --- importance levels ---

type ImportanceInput struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	SortOrder int    `json:"sort_order"`
}

func (s *CategoryService) CreateImportance(in ImportanceInput) (*models.Importance, error) {
	if in.Slug == "" || in.Name == "" {
		return nil, fmt.Errorf("slug and name are required: %w", ErrInvalidInput)
	}
	if !slugPattern.MatchString(in.Slug) {
		return nil, fmt.Errorf("slug must be lowercase letters, digits and hyphens: %w", ErrInvalidInput)
	}
	var existing models.Importance
	if err := s.db.Where("slug = ?", in.Slug).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("slug %q already exists: %w", in.Slug, ErrConflict)
	}
	importance := models.Importance{
		ID:        uuid.New(),
		Slug:      in.Slug,
		Name:      in.Name,
		Color:     in.Color,
		SortOrder: in.SortOrder,
	}
	if err := s.db.Create(&importance).Error; err != nil {
		return nil, fmt.Errorf("creating importance: %w", err)
	}
	return &importance, nil
}

// ImportanceUpdate is a partial update; the slug is immutable like a
// category's.
type ImportanceUpdate struct {
	Name      *string `json:"name"`
	Color     *string `json:"color"`
	SortOrder *int    `json:"sort_order"`
}

func (s *CategoryService) UpdateImportance(id uuid.UUID, in ImportanceUpdate) (*models.Importance, error) {
	var importance models.Importance
	if err := s.db.First(&importance, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("importance %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading importance: %w", err)
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Color != nil {
		updates["color"] = *in.Color
	}
	if in.SortOrder != nil {
		updates["sort_order"] = *in.SortOrder
	}
	if len(updates) == 0 {
		return &importance, nil
	}
	if err := s.db.Model(&importance).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("updating importance: %w", err)
	}
	return &importance, nil
}

func (s *CategoryService) ListImportances() ([]models.Importance, error) {
	var importances []models.Importance
	if err := s.db.Order("sort_order, slug").Find(&importances).Error; err != nil {
		return nil, fmt.Errorf("listing importances: %w", err)
	}
	return importances, nil
}

func (s *CategoryService) DeleteImportance(id uuid.UUID) error {
	result := s.db.Delete(&models.Importance{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting importance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("importance %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *CategoryService) ResolveImportances(ids []uuid.UUID) ([]models.Importance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var importances []models.Importance
	if err := s.db.Where("id IN ?", ids).Order("sort_order, slug").Find(&importances).Error; err != nil {
		return nil, fmt.Errorf("resolving importances: %w", err)
	}
	return importances, nil
}
