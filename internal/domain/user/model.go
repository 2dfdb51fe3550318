package user

import (
	"database/sql"
)

// User is the per-user aggregate: the keys a user has redeemed plus
// the hwid-reset bookkeeping used for cooldown evaluation. Records are
// created lazily on first redemption.
type User struct {
	UserID          string       `db:"user_id" json:"user_id"`
	Keys            []string     `db:"keys" json:"keys"`
	HwidLastResetAt sql.NullTime `db:"hwid_last_reset_at" json:"hwid_last_reset_at,omitempty"`
	HwidResetCount  int          `db:"hwid_reset_count" json:"hwid_reset_count"`
}

// OwnsKey reports whether the given token appears in the user's key list.
func (u *User) OwnsKey(token string) bool {
	for _, k := range u.Keys {
		if k == token {
			return true
		}
	}
	return false
}
