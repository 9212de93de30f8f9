package dto

import "github.com/google/uuid"

type CreateChannelRequest struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Image       string      `json:"image"`
	CategoryIDs []uuid.UUID `json:"category_ids"`
}

type UpdateChannelRequest struct {
	Name  *string `json:"name"`
	Image *string `json:"image"`
}

// RetagChannelRequest replaces a channel's whole category set. A missing
// category_ids field (nil) is rejected; an empty list detaches everything.
type RetagChannelRequest struct {
	CategoryIDs []uuid.UUID `json:"category_ids"`
}

type ChannelMembersRequest struct {
	UserIDs []string `json:"user_ids"`
}
