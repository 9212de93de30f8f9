package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestCreateCategory_SlugRules(t *testing.T) {
	db := newTestDB(t)
	svc := NewCategoryService(db)

	category, err := svc.CreateCategory(CategoryInput{Slug: "travel-deals", Name: "Travel deals"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if !category.Active {
		t.Fatal("new categories start active")
	}

	bad := []string{"", "Travel", "travel deals", "travel_", "-travel", "travel--deals"}
	for _, slug := range bad {
		if _, err := svc.CreateCategory(CategoryInput{Slug: slug, Name: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("slug %q: expected ErrInvalidInput, got %v", slug, err)
		}
	}
}

func TestCreateCategory_DuplicateSlug(t *testing.T) {
	db := newTestDB(t)
	svc := NewCategoryService(db)

	if _, err := svc.CreateCategory(CategoryInput{Slug: "cards", Name: "Cards"}); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if _, err := svc.CreateCategory(CategoryInput{Slug: "cards", Name: "Cards again"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateCategory_SlugImmutable(t *testing.T) {
	db := newTestDB(t)
	svc := NewCategoryService(db)

	category, err := svc.CreateCategory(CategoryInput{Slug: "cards", Name: "Cards"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	name := "Credit cards"
	updated, err := svc.UpdateCategory(category.ID, CategoryUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	if updated.Name != "Credit cards" {
		t.Fatalf("expected renamed category, got %q", updated.Name)
	}
	if updated.Slug != "cards" {
		t.Fatalf("slug must never change, got %q", updated.Slug)
	}
}

func TestDeactivateCategory_SoftDelete(t *testing.T) {
	db := newTestDB(t)
	svc := NewCategoryService(db)

	category, err := svc.CreateCategory(CategoryInput{Slug: "cards", Name: "Cards"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	if err := svc.DeactivateCategory(category.ID); err != nil {
		t.Fatalf("DeactivateCategory: %v", err)
	}

	active, err := svc.ListCategories(false)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active categories, got %d", len(active))
	}
	all, err := svc.ListCategories(true)
	if err != nil {
		t.Fatalf("ListCategories(all): %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("row must survive deactivation, got %d", len(all))
	}

	if err := svc.DeactivateCategory(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveCategories_DropsUnknownIDs(t *testing.T) {
	db := newTestDB(t)
	svc := NewCategoryService(db)

	cards, err := svc.CreateCategory(CategoryInput{Slug: "cards", Name: "Cards"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	resolved, err := svc.ResolveCategories([]uuid.UUID{cards.ID, uuid.New()})
	if err != nil {
		t.Fatalf("ResolveCategories: %v", err)
	}
	if len(resolved) != 1 || resolved[0].ID != cards.ID {
		t.Fatalf("unexpected resolution: %v", resolved)
	}
}

func TestImportances_CRUD(t *testing.T) {
	db := newTestDB(t)
	svc := NewCategoryService(db)

	urgent, err := svc.CreateImportance(ImportanceInput{Slug: "urgent", Name: "Urgent", SortOrder: 1})
	if err != nil {
		t.Fatalf("CreateImportance: %v", err)
	}
	if _, err := svc.CreateImportance(ImportanceInput{Slug: "urgent", Name: "Again"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	list, err := svc.ListImportances()
	if err != nil {
		t.Fatalf("ListImportances: %v", err)
	}
	if len(list) != 1 || list[0].Slug != "urgent" {
		t.Fatalf("unexpected list: %v", list)
	}

	name := "Very urgent"
	updated, err := svc.UpdateImportance(urgent.ID, ImportanceUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateImportance: %v", err)
	}
	if updated.Name != "Very urgent" || updated.Slug != "urgent" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if err := svc.DeleteImportance(urgent.ID); err != nil {
		t.Fatalf("DeleteImportance: %v", err)
	}
	if err := svc.DeleteImportance(urgent.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
