package key

import (
	"database/sql"
	"time"
)

// Key is a single-use license key. The token itself is the primary
// identifier and never changes after creation. Ownership is assigned
// exactly once at redemption and the hardware binding is assigned at
// most once between resets.
type Key struct {
	Key           string         `db:"key" json:"key"`
	OwnerUserID   sql.NullString `db:"owner_user_id" json:"owner_user_id,omitempty"`
	Hwid          sql.NullString `db:"hwid" json:"hwid,omitempty"`
	Active        bool           `db:"active" json:"active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt     sql.NullTime   `db:"expires_at" json:"expires_at,omitempty"`
	RedeemedAt    sql.NullTime   `db:"redeemed_at" json:"redeemed_at,omitempty"`
	CreatedBy     string         `db:"created_by" json:"created_by"`
	BlacklistedBy sql.NullString `db:"blacklisted_by" json:"blacklisted_by,omitempty"`
	BlacklistedAt sql.NullTime   `db:"blacklisted_at" json:"blacklisted_at,omitempty"`
}

// IsExpired evaluates expiry at read time. A key without expires_at
// never expires.
func (k *Key) IsExpired(now time.Time) bool {
	return k.ExpiresAt.Valid && now.After(k.ExpiresAt.Time)
}

// IsRedeemed reports whether ownership has been assigned.
func (k *Key) IsRedeemed() bool {
	return k.OwnerUserID.Valid
}
