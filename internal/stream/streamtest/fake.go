// Package streamtest provides an in-memory stream.Client for tests, with
// call recording and per-operation failure injection.
package streamtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/comunika-app/comunika-backend/internal/stream"
)

// Call records one client invocation in arrival order.
type Call struct {
	Op        string
	ChannelID string
	UserIDs   []string
	Feeds     []string
	Activity  string
}

// Fake is an in-memory stream.Client. Set FailOps entries to make specific
// operations return an error.
type Fake struct {
	mu sync.Mutex

	Users      map[string]stream.UpsertUserParams
	Channels   map[string]*FakeChannel
	Feeds      map[string]bool
	Activities map[string]stream.Activity

	// FailOps maps an op name ("UpsertUser", "AddMembers", ...) to the
	// error it should return.
	FailOps map[string]error

	Calls []Call
}

type FakeChannel struct {
	Type    string
	ID      string
	Name    string
	Image   string
	Custom  map[string]interface{}
	Members map[string]stream.Member
}

func NewFake() *Fake {
	return &Fake{
		Users:      make(map[string]stream.UpsertUserParams),
		Channels:   make(map[string]*FakeChannel),
		Feeds:      make(map[string]bool),
		Activities: make(map[string]stream.Activity),
		FailOps:    make(map[string]error),
	}
}

// Fail makes op return an error on every subsequent call.
func (f *Fake) Fail(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailOps[op] = fmt.Errorf("injected %s failure", op)
}

func (f *Fake) record(call Call) error {
	f.Calls = append(f.Calls, call)
	if err, ok := f.FailOps[call.Op]; ok {
		return err
	}
	return nil
}

// CallsFor returns the recorded calls for one op, in order.
func (f *Fake) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// AddChannel seeds a channel with the given members.
func (f *Fake) AddChannel(channelType, channelID string, memberIDs ...string) *FakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &FakeChannel{
		Type:    channelType,
		ID:      channelID,
		Custom:  make(map[string]interface{}),
		Members: make(map[string]stream.Member),
	}
	for _, id := range memberIDs {
		ch.Members[id] = stream.Member{UserID: id, JoinedAt: time.Now()}
	}
	f.Channels[stream.ChannelRef(channelType, channelID)] = ch
	return ch
}

// IsMember reports live membership.
func (f *Fake) IsMember(channelType, channelID, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[stream.ChannelRef(channelType, channelID)]
	if !ok {
		return false
	}
	_, ok = ch.Members[userID]
	return ok
}

// ActivityFeeds returns the feeds an activity currently belongs to, or nil.
func (f *Fake) ActivityFeeds(activityID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.Activities[activityID]
	if !ok {
		return nil
	}
	return a.Feeds
}

func (f *Fake) UpsertUser(ctx context.Context, params stream.UpsertUserParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "UpsertUser", UserIDs: []string{params.ID}}); err != nil {
		return err
	}
	f.Users[params.ID] = params
	return nil
}

func (f *Fake) DeleteUser(ctx context.Context, userID string, hard bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "DeleteUser", UserIDs: []string{userID}}); err != nil {
		return err
	}
	delete(f.Users, userID)
	for _, ch := range f.Channels {
		delete(ch.Members, userID)
	}
	return nil
}

func (f *Fake) CreateChannel(ctx context.Context, channelType, channelID string, update stream.ChannelUpdate, memberIDs []string) (*stream.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := stream.ChannelRef(channelType, channelID)
	if err := f.record(Call{Op: "CreateChannel", ChannelID: ref, UserIDs: memberIDs}); err != nil {
		return nil, err
	}
	ch, ok := f.Channels[ref]
	if !ok {
		ch = &FakeChannel{
			Type:    channelType,
			ID:      channelID,
			Custom:  make(map[string]interface{}),
			Members: make(map[string]stream.Member),
		}
		f.Channels[ref] = ch
	}
	applyUpdate(ch, update)
	for _, id := range memberIDs {
		ch.Members[id] = stream.Member{UserID: id, JoinedAt: time.Now()}
	}
	out := ch.toChannel()
	return &out, nil
}

func (f *Fake) UpdateChannel(ctx context.Context, channelType, channelID string, update stream.ChannelUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := stream.ChannelRef(channelType, channelID)
	if err := f.record(Call{Op: "UpdateChannel", ChannelID: ref}); err != nil {
		return err
	}
	ch, ok := f.Channels[ref]
	if !ok {
		return fmt.Errorf("channel %s not found", ref)
	}
	applyUpdate(ch, update)
	return nil
}

func (f *Fake) DeleteChannel(ctx context.Context, channelType, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := stream.ChannelRef(channelType, channelID)
	if err := f.record(Call{Op: "DeleteChannel", ChannelID: ref}); err != nil {
		return err
	}
	delete(f.Channels, ref)
	return nil
}

func (f *Fake) ListChannels(ctx context.Context, filter map[string]interface{}) ([]stream.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "ListChannels"}); err != nil {
		return nil, err
	}
	out := make([]stream.Channel, 0, len(f.Channels))
	for _, ch := range f.Channels {
		out = append(out, ch.toChannel())
	}
	return out, nil
}

func (f *Fake) AddMembers(ctx context.Context, channelType, channelID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := stream.ChannelRef(channelType, channelID)
	if err := f.record(Call{Op: "AddMembers", ChannelID: ref, UserIDs: userIDs}); err != nil {
		return err
	}
	ch, ok := f.Channels[ref]
	if !ok {
		return fmt.Errorf("channel %s not found", ref)
	}
	for _, id := range userIDs {
		ch.Members[id] = stream.Member{UserID: id, JoinedAt: time.Now()}
	}
	return nil
}

func (f *Fake) RemoveMembers(ctx context.Context, channelType, channelID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := stream.ChannelRef(channelType, channelID)
	if err := f.record(Call{Op: "RemoveMembers", ChannelID: ref, UserIDs: userIDs}); err != nil {
		return err
	}
	ch, ok := f.Channels[ref]
	if !ok {
		return fmt.Errorf("channel %s not found", ref)
	}
	for _, id := range userIDs {
		delete(ch.Members, id)
	}
	return nil
}

func (f *Fake) ListMembers(ctx context.Context, channelType, channelID string) ([]stream.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := stream.ChannelRef(channelType, channelID)
	if err := f.record(Call{Op: "ListMembers", ChannelID: ref}); err != nil {
		return nil, err
	}
	ch, ok := f.Channels[ref]
	if !ok {
		return nil, fmt.Errorf("channel %s not found", ref)
	}
	out := make([]stream.Member, 0, len(ch.Members))
	for _, m := range ch.Members {
		out = append(out, m)
	}
	return out, nil
}

func (f *Fake) EnsureFeed(ctx context.Context, group, feedID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := group + ":" + feedID
	if err := f.record(Call{Op: "EnsureFeed", Feeds: []string{ref}}); err != nil {
		return err
	}
	f.Feeds[ref] = true
	return nil
}

func (f *Fake) PublishActivity(ctx context.Context, params stream.PublishActivityParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "PublishActivity", Feeds: params.Feeds, Activity: params.ID}); err != nil {
		return "", err
	}
	f.Activities[params.ID] = stream.Activity{
		ID:     params.ID,
		Text:   params.Text,
		Feeds:  params.Feeds,
		Custom: params.Custom,
	}
	return params.ID, nil
}

func (f *Fake) RemoveActivity(ctx context.Context, activityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "RemoveActivity", Activity: activityID}); err != nil {
		return err
	}
	delete(f.Activities, activityID)
	return nil
}

func (f *Fake) QueryActivities(ctx context.Context, feed string, limit int) ([]stream.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "QueryActivities", Feeds: []string{feed}}); err != nil {
		return nil, err
	}
	var out []stream.Activity
	for _, a := range f.Activities {
		for _, fd := range a.Feeds {
			if fd == feed {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func applyUpdate(ch *FakeChannel, update stream.ChannelUpdate) {
	if update.Name != nil {
		ch.Name = *update.Name
	}
	if update.Image != nil {
		ch.Image = *update.Image
	}
	for k, v := range update.Custom {
		ch.Custom[k] = v
	}
}

func (ch *FakeChannel) toChannel() stream.Channel {
	return stream.Channel{
		Type:        ch.Type,
		ID:          ch.ID,
		Name:        ch.Name,
		Image:       ch.Image,
		MemberCount: len(ch.Members),
		Custom:      ch.Custom,
	}
}

var _ stream.Client = (*Fake)(nil)
