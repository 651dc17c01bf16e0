// Package invite issues and validates per-guardian access tokens for the
// recovery key portal.
package invite

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
)

// ErrAccessDenied is returned for any failed access resolution. It is
// deliberately uniform: callers must not learn whether an address or
// token exists, only that access was refused.
var ErrAccessDenied = errors.New("invalid or expired access")

const tokenBytes = 32

// IssueToken generates an opaque random invite token and its absolute
// expiry. Expiry is fixed at creation and never extended by use.
func IssueToken(now time.Time) (token string, expiresAt time.Time, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), now.Add(recovery.InviteTTL), nil
}

// ResolveAccess matches a portal request against the recovery's keys.
// Access by guardian address requires an exact case-insensitive match.
// Access by token requires a matching token that has not yet expired.
func ResolveAccess(keys []*recovery.Key, req recovery.AccessRequest, now time.Time) (*recovery.Key, error) {
	switch {
	case req.GuardianAddress != "":
		for _, k := range keys {
			if strings.EqualFold(k.WalletAddress, req.GuardianAddress) {
				return k, nil
			}
		}
	case req.InviteToken != "":
		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(k.InviteToken), []byte(req.InviteToken)) == 1 {
				if !now.Before(k.InviteExpiresAt) {
					return nil, ErrAccessDenied
				}
				return k, nil
			}
		}
	}
	return nil, ErrAccessDenied
}
