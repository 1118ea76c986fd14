/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the wire contract the mobile clients
  already speak (children carry "coins", history is "completedHistory").

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in the session/gateway layers, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/quest-ledger/gateway"
	"github.com/warp/quest-ledger/quest"
	"github.com/warp/quest-ledger/session"
)

// =============================================================================
// AUTH
// =============================================================================

// LoginRequest is the credential pair from the login screen.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is what the client stores in its secure credential store.
type LoginResponse struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	ChildID   string `json:"childId,omitempty"`
	ExpiresAt string `json:"expiresAt"`
}

// RegisterRequest creates a parent account. Field names match the mobile
// client's payload.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

// AccountDTO is a created account, password hash excluded.
type AccountDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// =============================================================================
// QUESTS AND DASHBOARDS
// =============================================================================

// QuestDTO represents a quest in API responses.
type QuestDTO struct {
	ID          string `json:"id"`
	ChildID     string `json:"childId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      int64  `json:"reward"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	VerifiedAt  string `json:"verifiedAt,omitempty"`
}

// ChildDTO is one child's full dashboard, in the shape the mobile app's
// Child interface expects.
type ChildDTO struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Coins            int64      `json:"coins"`
	AvatarColor      string     `json:"avatarColor,omitempty"`
	ActiveQuests     []QuestDTO `json:"activeQuests"`
	CompletedHistory []QuestDTO `json:"completedHistory"`
}

// CreateQuestRequest assigns a new quest to a child.
type CreateQuestRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      int64  `json:"reward"`
}

// ToggleRequest flips a quest between PENDING and SUBMITTED.
type ToggleRequest struct {
	Submitted bool `json:"submitted"`
}

// VerifyRequest resolves a submitted quest.
type VerifyRequest struct {
	ChildID string `json:"childId"`
	QuestID string `json:"questId"`
	Approve bool   `json:"approve"`
}

// ProvisionChildRequest creates a child ledger.
type ProvisionChildRequest struct {
	Name        string `json:"name"`
	AvatarColor string `json:"avatarColor"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toQuestDTO(q quest.Quest) QuestDTO {
	dto := QuestDTO{
		ID:          string(q.ID),
		ChildID:     string(q.ChildID),
		Title:       q.Title,
		Description: q.Description,
		Reward:      q.Reward,
		Status:      string(q.Status),
		CreatedAt:   q.CreatedAt.Format(time.RFC3339),
	}
	if q.VerifiedAt != nil {
		dto.VerifiedAt = q.VerifiedAt.Format(time.RFC3339)
	}
	return dto
}

func toQuestDTOs(quests []quest.Quest) []QuestDTO {
	dtos := make([]QuestDTO, len(quests))
	for i, q := range quests {
		dtos[i] = toQuestDTO(q)
	}
	return dtos
}

func toChildDTO(d quest.Dashboard) ChildDTO {
	return ChildDTO{
		ID:               string(d.Child.ID),
		Name:             d.Child.Name,
		Coins:            d.Balance.Int64(),
		AvatarColor:      d.Child.AvatarColor,
		ActiveQuests:     toQuestDTOs(d.ActiveQuests),
		CompletedHistory: toQuestDTOs(d.History),
	}
}

func toLoginResponse(r *gateway.AuthResult) LoginResponse {
	return LoginResponse{
		Token:     r.Token,
		Role:      string(r.Role),
		ChildID:   string(r.ChildID),
		ExpiresAt: r.ExpiresAt.Format(time.RFC3339),
	}
}

func toAccountDTO(a *session.Account) AccountDTO {
	return AccountDTO{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		Role:     string(a.Role),
	}
}
