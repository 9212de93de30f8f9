// Package stream talks to the external realtime platform: chat channels,
// channel memberships and per-category activity feeds. The relational store
// is the source of truth; everything written here is a derived projection.
package stream

import (
	"context"
	"time"
)

// UpsertUserParams mirrors the platform's user record. Custom carries the
// admin-defined attributes (allowed category slugs, status, email).
type UpsertUserParams struct {
	ID     string
	Name   string
	Image  string
	Role   string
	Custom map[string]interface{}
}

// Channel is the platform's view of a chat channel.
type Channel struct {
	Type        string
	ID          string
	Name        string
	Image       string
	MemberCount int
	Custom      map[string]interface{}
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChannelUpdate is a partial update; nil fields are left untouched.
type ChannelUpdate struct {
	Name   *string
	Image  *string
	Custom map[string]interface{}
}

// Member is one channel membership as reported live by the platform.
type Member struct {
	UserID   string
	Role     string
	JoinedAt time.Time
}

// Activity is one feed entry.
type Activity struct {
	ID     string
	Text   string
	Feeds  []string
	Custom map[string]interface{}
}

// PublishActivityParams fans one activity out to several feeds. ID lets the
// caller pick a stable activity id so republishing overwrites rather than
// duplicates.
type PublishActivityParams struct {
	ID     string
	Feeds  []string
	Text   string
	Custom map[string]interface{}
}

// Client is the full surface the sync engine needs from the platform. It is
// satisfied by HTTPClient in production and by streamtest.Fake in tests.
type Client interface {
	UpsertUser(ctx context.Context, params UpsertUserParams) error
	DeleteUser(ctx context.Context, userID string, hard bool) error

	CreateChannel(ctx context.Context, channelType, channelID string, update ChannelUpdate, memberIDs []string) (*Channel, error)
	UpdateChannel(ctx context.Context, channelType, channelID string, update ChannelUpdate) error
	DeleteChannel(ctx context.Context, channelType, channelID string) error
	ListChannels(ctx context.Context, filter map[string]interface{}) ([]Channel, error)

	AddMembers(ctx context.Context, channelType, channelID string, userIDs []string) error
	RemoveMembers(ctx context.Context, channelType, channelID string, userIDs []string) error
	ListMembers(ctx context.Context, channelType, channelID string) ([]Member, error)

	EnsureFeed(ctx context.Context, group, feedID string) error
	PublishActivity(ctx context.Context, params PublishActivityParams) (string, error)
	RemoveActivity(ctx context.Context, activityID string) error
	QueryActivities(ctx context.Context, feed string, limit int) ([]Activity, error)
}

// FeedRef builds the feed reference for a category slug. Every category has
// one global feed.
func FeedRef(slug string) string {
	return slug + ":global"
}

// ActivityID builds the stable feed activity id for an announcement, so that
// republishing the same announcement overwrites the previous activity.
func ActivityID(announcementID string) string {
	return "announcement:" + announcementID
}

// ChannelRef builds the composite channel identifier stored in the
// channel-category link table.
func ChannelRef(channelType, channelID string) string {
	return channelType + ":" + channelID
}
