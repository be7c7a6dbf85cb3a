// Package identity maps authenticated emails and anonymous browser ids to the
// user keys stored in the database.
package identity

import (
	"math/rand"
	"strconv"
	"strings"
	"time"

	"live-survey-service/internal/domain"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// AnonymousID returns a fresh anonymous user id of the form user_<unix-ms>_<9 base36 chars>.
func AnonymousID(now time.Time, intn func(n int) int) string {
	if intn == nil {
		intn = rand.Intn
	}
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = base36[intn(len(base36))]
	}
	return "user_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix)
}

// EmailKey converts an email into a path-safe key. Emails compare
// case-insensitively, so the key is lowercased and dots become commas.
func EmailKey(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	return strings.ReplaceAll(email, ".", ",")
}

// Resolve picks the stable user key: the email key when authenticated, the
// anonymous id otherwise.
func Resolve(email, anonymousID string) (string, error) {
	if email = strings.TrimSpace(email); email != "" {
		return EmailKey(email), nil
	}
	if anonymousID = strings.TrimSpace(anonymousID); anonymousID != "" {
		return anonymousID, nil
	}
	return "", domain.ErrInvalidUser
}
