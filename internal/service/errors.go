package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrKeyNotFound        = errors.New("key does not exist")
	ErrKeyBlacklisted     = errors.New("key is blacklisted")
	ErrKeyAlreadyRedeemed = errors.New("key has already been redeemed")
	ErrKeyExpired         = errors.New("key has expired")
	ErrKeyNotRedeemed     = errors.New("key has not been redeemed yet")
	ErrNoHwid             = errors.New("key has no hwid bound")
	ErrNotKeyOwner        = errors.New("requester does not own this key")
	ErrAlreadyInactive    = errors.New("key is already blacklisted")
)

// CooldownActiveError reports how long the requester still has to wait
// before the next hwid reset.
type CooldownActiveError struct {
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("hwid reset cooldown active, %s remaining", e.Remaining)
}
