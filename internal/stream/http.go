package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HTTPClient implements Client against the platform's REST API. Server-side
// requests authenticate with a JWT signed by the API secret.
type HTTPClient struct {
	apiKey      string
	apiSecret   []byte
	baseURL     string
	httpClient  *http.Client
	serverToken string
}

func NewHTTPClient(apiKey, apiSecret, baseURL string, timeout time.Duration) (*HTTPClient, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("stream: missing api key or secret")
	}
	c := &HTTPClient{
		apiKey:     apiKey,
		apiSecret:  []byte(apiSecret),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	token, err := c.signServerToken()
	if err != nil {
		return nil, fmt.Errorf("stream: signing server token: %w", err)
	}
	c.serverToken = token
	return c, nil
}

func (c *HTTPClient) signServerToken() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"server": true,
	})
	return token.SignedString(c.apiSecret)
}

// apiError is the platform's error envelope.
type apiError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"StatusCode"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("stream: encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), reader)
	if err != nil {
		return fmt.Errorf("stream: building request: %w", err)
	}
	req.Header.Set("Authorization", c.serverToken)
	req.Header.Set("Stream-Auth-Type", "jwt")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stream: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("stream: reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("stream: %s %s: %s (code %d)", method, path, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("stream: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("stream: decoding response: %w", err)
		}
	}
	return nil
}

// --- users ---

func (c *HTTPClient) UpsertUser(ctx context.Context, params UpsertUserParams) error {
	user := map[string]interface{}{
		"id":   params.ID,
		"name": params.Name,
		"role": params.Role,
	}
	if params.Image != "" {
		user["image"] = params.Image
	}
	for k, v := range params.Custom {
		user[k] = v
	}
	body := map[string]interface{}{
		"users": map[string]interface{}{params.ID: user},
	}
	return c.do(ctx, http.MethodPost, "/users", nil, body, nil)
}

func (c *HTTPClient) DeleteUser(ctx context.Context, userID string, hard bool) error {
	mode := "soft"
	if hard {
		mode = "hard"
	}
	body := map[string]interface{}{
		"user_ids": []string{userID},
		"user":     mode,
		"messages": mode,
	}
	return c.do(ctx, http.MethodPost, "/users/delete", nil, body, nil)
}

// --- channels ---

type channelResponse struct {
	Channel wireChannel  `json:"channel"`
	Members []wireMember `json:"members"`
}

type wireChannel struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Image       string                 `json:"image"`
	MemberCount int                    `json:"member_count"`
	Custom      map[string]interface{} `json:"custom"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type wireMember struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (w wireChannel) toChannel() Channel {
	return Channel{
		Type:        w.Type,
		ID:          w.ID,
		Name:        w.Name,
		Image:       w.Image,
		MemberCount: w.MemberCount,
		Custom:      w.Custom,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func (c *HTTPClient) CreateChannel(ctx context.Context, channelType, channelID string, update ChannelUpdate, memberIDs []string) (*Channel, error) {
	data := map[string]interface{}{
		"created_by_id": "admin",
	}
	if update.Name != nil {
		data["name"] = *update.Name
	}
	if update.Image != nil {
		data["image"] = *update.Image
	}
	for k, v := range update.Custom {
		data[k] = v
	}
	if len(memberIDs) > 0 {
		members := make([]map[string]string, 0, len(memberIDs))
		for _, id := range memberIDs {
			members = append(members, map[string]string{"user_id": id})
		}
		data["members"] = members
	}

	var resp channelResponse
	path := fmt.Sprintf("/channels/%s/%s/query", channelType, channelID)
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]interface{}{"data": data}, &resp); err != nil {
		return nil, err
	}
	ch := resp.Channel.toChannel()
	return &ch, nil
}

func (c *HTTPClient) UpdateChannel(ctx context.Context, channelType, channelID string, update ChannelUpdate) error {
	set := map[string]interface{}{}
	if update.Name != nil && *update.Name != "" {
		set["name"] = *update.Name
	}
	if update.Image != nil && *update.Image != "" {
		set["image"] = *update.Image
	}
	for k, v := range update.Custom {
		set[k] = v
	}
	if len(set) == 0 {
		return nil
	}
	path := fmt.Sprintf("/channels/%s/%s", channelType, channelID)
	return c.do(ctx, http.MethodPatch, path, nil, map[string]interface{}{"set": set}, nil)
}

func (c *HTTPClient) DeleteChannel(ctx context.Context, channelType, channelID string) error {
	path := fmt.Sprintf("/channels/%s/%s", channelType, channelID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *HTTPClient) ListChannels(ctx context.Context, filter map[string]interface{}) ([]Channel, error) {
	if filter == nil {
		filter = map[string]interface{}{}
	}
	body := map[string]interface{}{
		"filter_conditions": filter,
		"sort":              []map[string]interface{}{{"field": "created_at", "direction": -1}},
		"limit":             100,
	}
	var resp struct {
		Channels []channelResponse `json:"channels"`
	}
	if err := c.do(ctx, http.MethodPost, "/channels", nil, body, &resp); err != nil {
		return nil, err
	}
	channels := make([]Channel, 0, len(resp.Channels))
	for _, ch := range resp.Channels {
		channels = append(channels, ch.Channel.toChannel())
	}
	return channels, nil
}

func (c *HTTPClient) AddMembers(ctx context.Context, channelType, channelID string, userIDs []string) error {
	members := make([]map[string]string, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, map[string]string{"user_id": id})
	}
	path := fmt.Sprintf("/channels/%s/%s", channelType, channelID)
	return c.do(ctx, http.MethodPost, path, nil, map[string]interface{}{"add_members": members}, nil)
}

func (c *HTTPClient) RemoveMembers(ctx context.Context, channelType, channelID string, userIDs []string) error {
	path := fmt.Sprintf("/channels/%s/%s", channelType, channelID)
	return c.do(ctx, http.MethodPost, path, nil, map[string]interface{}{"remove_members": userIDs}, nil)
}

func (c *HTTPClient) ListMembers(ctx context.Context, channelType, channelID string) ([]Member, error) {
	var resp channelResponse
	path := fmt.Sprintf("/channels/%s/%s/query", channelType, channelID)
	body := map[string]interface{}{"state": true}
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(resp.Members))
	for _, m := range resp.Members {
		members = append(members, Member{UserID: m.UserID, Role: m.Role, JoinedAt: m.CreatedAt})
	}
	return members, nil
}

// --- feeds ---

func (c *HTTPClient) EnsureFeed(ctx context.Context, group, feedID string) error {
	path := fmt.Sprintf("/feeds/%s/%s", group, feedID)
	return c.do(ctx, http.MethodPost, path, nil, map[string]interface{}{"data": map[string]interface{}{}}, nil)
}

func (c *HTTPClient) PublishActivity(ctx context.Context, params PublishActivityParams) (string, error) {
	body := map[string]interface{}{
		"id":      params.ID,
		"type":    "announce",
		"feeds":   params.Feeds,
		"text":    params.Text,
		"user_id": "admin",
		"custom":  params.Custom,
	}
	var resp struct {
		Activity struct {
			ID string `json:"id"`
		} `json:"activity"`
	}
	if err := c.do(ctx, http.MethodPost, "/feeds/activities", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.Activity.ID != "" {
		return resp.Activity.ID, nil
	}
	return params.ID, nil
}

func (c *HTTPClient) RemoveActivity(ctx context.Context, activityID string) error {
	query := url.Values{}
	query.Set("hard_delete", "false")
	return c.do(ctx, http.MethodDelete, "/feeds/activities/"+url.PathEscape(activityID), query, nil, nil)
}

func (c *HTTPClient) QueryActivities(ctx context.Context, feed string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"feeds": map[string]interface{}{"$in": []string{feed}},
		},
		"limit": limit,
	}
	var resp struct {
		Activities []struct {
			ID     string                 `json:"id"`
			Text   string                 `json:"text"`
			Feeds  []string               `json:"feeds"`
			Custom map[string]interface{} `json:"custom"`
		} `json:"activities"`
	}
	if err := c.do(ctx, http.MethodPost, "/feeds/activities/query", nil, body, &resp); err != nil {
		return nil, err
	}
	activities := make([]Activity, 0, len(resp.Activities))
	for _, a := range resp.Activities {
		activities = append(activities, Activity{ID: a.ID, Text: a.Text, Feeds: a.Feeds, Custom: a.Custom})
	}
	return activities, nil
}

var _ Client = (*HTTPClient)(nil)
