package dto

import (
	"time"

	"github.com/keywarden/keywarden/internal/domain/key"
)

type CreateKeysRequest struct {
	// Duration in days; 0 or absent mints lifetime keys.
	Duration int `json:"duration" binding:"omitempty,gte=0"`
	Quantity int `json:"quantity" binding:"required,gte=1,lte=100"`
}

type CreatedKey struct {
	Key     string     `json:"key"`
	Expires *time.Time `json:"expires"`
}

type CreateKeysResponse struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Keys    []CreatedKey `json:"keys"`
}

func NewCreateKeysResponse(keys []*key.Key) CreateKeysResponse {
	created := make([]CreatedKey, len(keys))
	for i, k := range keys {
		created[i] = CreatedKey{Key: k.Key}
		if k.ExpiresAt.Valid {
			t := k.ExpiresAt.Time
			created[i].Expires = &t
		}
	}
	return CreateKeysResponse{Success: true, Count: len(created), Keys: created}
}

type KeyResponse struct {
	Key           string     `json:"key"`
	OwnerUserID   *string    `json:"ownerUserId,omitempty"`
	Hwid          *string    `json:"hwid,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	RedeemedAt    *time.Time `json:"redeemedAt,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	BlacklistedBy *string    `json:"blacklistedBy,omitempty"`
	BlacklistedAt *time.Time `json:"blacklistedAt,omitempty"`
	IsExpired     bool       `json:"isExpired"`
}

func NewKeyResponse(k *key.Key, now time.Time) *KeyResponse {
	resp := &KeyResponse{
		Key:       k.Key,
		Active:    k.Active,
		CreatedAt: k.CreatedAt,
		CreatedBy: k.CreatedBy,
		IsExpired: k.IsExpired(now),
	}
	if k.OwnerUserID.Valid {
		resp.OwnerUserID = &k.OwnerUserID.String
	}
	if k.Hwid.Valid {
		resp.Hwid = &k.Hwid.String
	}
	if k.ExpiresAt.Valid {
		t := k.ExpiresAt.Time
		resp.ExpiresAt = &t
	}
	if k.RedeemedAt.Valid {
		t := k.RedeemedAt.Time
		resp.RedeemedAt = &t
	}
	if k.BlacklistedBy.Valid {
		resp.BlacklistedBy = &k.BlacklistedBy.String
	}
	if k.BlacklistedAt.Valid {
		t := k.BlacklistedAt.Time
		resp.BlacklistedAt = &t
	}
	return resp
}

type BlacklistKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

type BlacklistKeyResponse struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
}
