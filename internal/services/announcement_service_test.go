package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/comunika-app/comunika-backend/internal/models"
	"github.com/comunika-app/comunika-backend/internal/stream"
	"github.com/comunika-app/comunika-backend/internal/stream/streamtest"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newAnnouncementService(db *gorm.DB, fake *streamtest.Fake) *AnnouncementService {
	return NewAnnouncementService(db, fake, NewCategoryService(db))
}

func TestCreateAnnouncement_DraftStaysOffFeeds(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")

	view, sync, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "New card",
		Content:     "Details inside",
		CategoryIDs: []uuid.UUID{cards.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !sync.Synced {
		t.Fatalf("draft create reports synced, got %+v", sync)
	}
	if view.Status != models.AnnouncementDraft {
		t.Fatalf("expected draft default, got %s", view.Status)
	}
	if calls := fake.CallsFor("PublishActivity"); len(calls) != 0 {
		t.Fatalf("draft must never reach the feeds, got %d publishes", len(calls))
	}
	if view.ExternalActivityID != nil {
		t.Fatal("draft must not record an activity id")
	}
}

func TestCreateAnnouncement_PublishFansOutPerCategory(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")
	miles := seedCategory(t, db, "miles")

	view, sync, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "Promo",
		Content:     "Double points this week",
		Status:      models.AnnouncementPublished,
		CategoryIDs: []uuid.UUID{cards.ID, miles.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !sync.Synced {
		t.Fatalf("expected synced publish, got %+v", sync)
	}

	activityID := stream.ActivityID(view.ID.String())
	feeds := fake.ActivityFeeds(activityID)
	if len(feeds) != 2 || feeds[0] != "cards:global" || feeds[1] != "miles:global" {
		t.Fatalf("unexpected feed fan-out: %v", feeds)
	}
	if !fake.Feeds["cards:global"] || !fake.Feeds["miles:global"] {
		t.Fatal("expected feeds created before publish")
	}

	var reloaded models.Announcement
	if err := db.First(&reloaded, "id = ?", view.ID).Error; err != nil {
		t.Fatalf("reloading announcement: %v", err)
	}
	if reloaded.ExternalActivityID == nil || *reloaded.ExternalActivityID != activityID {
		t.Fatalf("expected recorded activity id %s, got %v", activityID, reloaded.ExternalActivityID)
	}
}

func TestCreateAnnouncement_TruncatesFeedText(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")
	long := strings.Repeat("x", 500)

	view, _, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "Long",
		Content:     long,
		Status:      models.AnnouncementPublished,
		CategoryIDs: []uuid.UUID{cards.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	activity := fake.Activities[stream.ActivityID(view.ID.String())]
	if len(activity.Text) != 200 {
		t.Fatalf("expected 200-char preview, got %d", len(activity.Text))
	}
	if activity.Custom["full_content"] != long {
		t.Fatal("expected untruncated content in the payload")
	}
}

func TestCreateAnnouncement_TruncatesOnRuneBoundary(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")
	long := strings.Repeat("é", 300)

	view, _, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "Accented",
		Content:     long,
		Status:      models.AnnouncementPublished,
		CategoryIDs: []uuid.UUID{cards.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	activity := fake.Activities[stream.ActivityID(view.ID.String())]
	if !utf8.ValidString(activity.Text) {
		t.Fatal("preview must not split a multi-byte character")
	}
	if got := utf8.RuneCountInString(activity.Text); got != 200 {
		t.Fatalf("expected 200-character preview, got %d", got)
	}
}

func TestCreateAnnouncement_LinkFailureDeletesRow(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")

	// Force the link insert to fail after the announcement row commits.
	if err := db.Migrator().DropTable(&models.AnnouncementCategory{}); err != nil {
		t.Fatalf("dropping link table: %v", err)
	}

	_, _, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "Orphan",
		Content:     "Should not survive",
		CategoryIDs: []uuid.UUID{cards.ID},
	})
	if err == nil {
		t.Fatal("expected link failure to surface")
	}

	var count int64
	if err := db.Model(&models.Announcement{}).Count(&count).Error; err != nil {
		t.Fatalf("counting announcements: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected compensation delete, have %d rows", count)
	}
}

func TestCreateAnnouncement_FeedFailureKeepsRow(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")
	fake.Fail("PublishActivity")

	view, sync, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "Promo",
		Content:     "Still stored",
		Status:      models.AnnouncementPublished,
		CategoryIDs: []uuid.UUID{cards.ID},
	})
	if err != nil {
		t.Fatalf("feed failure must not fail the create, got %v", err)
	}
	if sync.Synced {
		t.Fatal("expected unsynced result")
	}

	var reloaded models.Announcement
	if err := db.First(&reloaded, "id = ?", view.ID).Error; err != nil {
		t.Fatalf("announcement row must survive a feed failure: %v", err)
	}
	if reloaded.ExternalActivityID != nil {
		t.Fatal("no activity id must be recorded for a failed publish")
	}
}

func TestCreateAnnouncement_Validation(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")

	cases := []AnnouncementInput{
		{Content: "no title", CategoryIDs: []uuid.UUID{cards.ID}},
		{Title: "no content", CategoryIDs: []uuid.UUID{cards.ID}},
		{Title: "no categories", Content: "x"},
		{Title: "bad status", Content: "x", Status: "archived", CategoryIDs: []uuid.UUID{cards.ID}},
		{Title: "unknown category", Content: "x", CategoryIDs: []uuid.UUID{uuid.New()}},
	}
	for i, in := range cases {
		if _, _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestUpdateAnnouncement_RetagRemovesOldFeedsFirst(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")
	travel := seedCategory(t, db, "travel")

	view, _, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "Promo",
		Content:     "Now boarding",
		Status:      models.AnnouncementPublished,
		CategoryIDs: []uuid.UUID{cards.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newIDs := []uuid.UUID{travel.ID}
	updated, sync, err := svc.Update(context.Background(), view.ID, AnnouncementUpdate{CategoryIDs: &newIDs})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !sync.Synced {
		t.Fatalf("expected synced update, got %+v", sync)
	}
	if len(updated.Categories) != 1 || updated.Categories[0].Slug != "travel" {
		t.Fatalf("unexpected categories after retag: %v", updated.Categories)
	}

	activityID := stream.ActivityID(view.ID.String())
	feeds := fake.ActivityFeeds(activityID)
	if len(feeds) != 1 || feeds[0] != "travel:global" {
		t.Fatalf("expected activity only in new feeds, got %v", feeds)
	}

	// The removal from the old feeds must precede the new publish so the
	// announcement is never in both sets at once.
	var sawRemove bool
	for _, call := range fake.Calls {
		if call.Op == "RemoveActivity" && call.Activity == activityID {
			sawRemove = true
		}
		if call.Op == "PublishActivity" && call.Activity == activityID && len(call.Feeds) == 1 && call.Feeds[0] == "travel:global" {
			if !sawRemove {
				t.Fatal("publish to new feeds happened before removal from old feeds")
			}
		}
	}
	if !sawRemove {
		t.Fatal("expected a RemoveActivity call")
	}
}

func TestUpdateAnnouncement_RemoveFailureSkipsPublish(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")
	travel := seedCategory(t, db, "travel")

	view, _, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "Promo",
		Content:     "x",
		Status:      models.AnnouncementPublished,
		CategoryIDs: []uuid.UUID{cards.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	publishesBefore := len(fake.CallsFor("PublishActivity"))
	fake.Fail("RemoveActivity")

	newIDs := []uuid.UUID{travel.ID}
	_, sync, err := svc.Update(context.Background(), view.ID, AnnouncementUpdate{CategoryIDs: &newIDs})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if sync.Synced {
		t.Fatal("expected unsynced result when removal fails")
	}
	if got := len(fake.CallsFor("PublishActivity")); got != publishesBefore {
		t.Fatalf("publish must be skipped after a failed removal, got %d publishes", got)
	}

	// The relational retag still committed; the next update repairs feeds.
	var links []models.AnnouncementCategory
	if err := db.Where("announcement_id = ?", view.ID).Find(&links).Error; err != nil {
		t.Fatalf("loading links: %v", err)
	}
	if len(links) != 1 || links[0].CategoryID != travel.ID {
		t.Fatalf("expected committed retag, got %+v", links)
	}
}

func TestUpdateAnnouncement_StatusTransitions(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")

	view, _, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "Promo",
		Content:     "x",
		CategoryIDs: []uuid.UUID{cards.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	activityID := stream.ActivityID(view.ID.String())

	published := models.AnnouncementPublished
	if _, sync, err := svc.Update(context.Background(), view.ID, AnnouncementUpdate{Status: &published}); err != nil || !sync.Synced {
		t.Fatalf("publish transition: err=%v sync=%+v", err, sync)
	}
	if feeds := fake.ActivityFeeds(activityID); len(feeds) != 1 {
		t.Fatalf("expected activity on feeds after publishing, got %v", feeds)
	}

	draft := models.AnnouncementDraft
	if _, sync, err := svc.Update(context.Background(), view.ID, AnnouncementUpdate{Status: &draft}); err != nil || !sync.Synced {
		t.Fatalf("unpublish transition: err=%v sync=%+v", err, sync)
	}
	if feeds := fake.ActivityFeeds(activityID); feeds != nil {
		t.Fatalf("expected activity withdrawn after unpublishing, got %v", feeds)
	}
}

func TestDeleteAnnouncement_RemovesProjectionAndRows(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")

	view, _, err := svc.Create(context.Background(), AnnouncementInput{
		Title:       "Promo",
		Content:     "x",
		Status:      models.AnnouncementPublished,
		CategoryIDs: []uuid.UUID{cards.ID},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sync, err := svc.Delete(context.Background(), view.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !sync.Synced {
		t.Fatalf("expected synced delete, got %+v", sync)
	}

	if feeds := fake.ActivityFeeds(stream.ActivityID(view.ID.String())); feeds != nil {
		t.Fatalf("expected activity removed, still on %v", feeds)
	}
	var count int64
	if err := db.Model(&models.Announcement{}).Where("id = ?", view.ID).Count(&count).Error; err != nil {
		t.Fatalf("counting announcements: %v", err)
	}
	if count != 0 {
		t.Fatal("expected announcement row deleted")
	}
	if err := db.Model(&models.AnnouncementCategory{}).Where("announcement_id = ?", view.ID).Count(&count).Error; err != nil {
		t.Fatalf("counting links: %v", err)
	}
	if count != 0 {
		t.Fatal("expected link rows deleted")
	}

	if _, err := svc.Get(view.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListAnnouncements_Filters(t *testing.T) {
	db, fake := newTestEnv(t)
	svc := newAnnouncementService(db, fake)
	cards := seedCategory(t, db, "cards")
	miles := seedCategory(t, db, "miles")

	if _, _, err := svc.Create(context.Background(), AnnouncementInput{
		Title: "a", Content: "x", CategoryIDs: []uuid.UUID{cards.ID},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := svc.Create(context.Background(), AnnouncementInput{
		Title: "b", Content: "x", Status: models.AnnouncementPublished, CategoryIDs: []uuid.UUID{miles.ID},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, err := svc.List("", nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 announcements, got %d", len(all))
	}

	publishedOnly, err := svc.List(models.AnnouncementPublished, nil)
	if err != nil {
		t.Fatalf("List published: %v", err)
	}
	if len(publishedOnly) != 1 || publishedOnly[0].Title != "b" {
		t.Fatalf("unexpected published filter result: %+v", publishedOnly)
	}

	byCategory, err := svc.List("", &cards.ID)
	if err != nil {
		t.Fatalf("List by category: %v", err)
	}
	if len(byCategory) != 1 || byCategory[0].Title != "a" {
		t.Fatalf("unexpected category filter result: %+v", byCategory)
	}
}
