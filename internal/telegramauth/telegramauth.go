// Package telegramauth verifies Telegram Login Widget payloads. The
// widget signs a data-check string with HMAC-SHA256 under a key derived
// from the bot token; anything that fails that signature, or is too old,
// is rejected.
package telegramauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignature = errors.New("telegram auth: bad signature")
	ErrStale        = errors.New("telegram auth: payload too old")
	ErrIncomplete   = errors.New("telegram auth: missing required fields")
)

// DefaultMaxAge bounds how old an auth_date may be.
const DefaultMaxAge = 24 * time.Hour

// Profile is the verified identity extracted from the widget payload.
type Profile struct {
	TelegramID string
	FirstName  string
	LastName   string
	Username   string
	PhotoURL   string
	AuthDate   time.Time
}

// Verifier checks a raw widget payload and yields a profile.
type Verifier interface {
	Verify(fields map[string]string) (Profile, error)
}

// HMACVerifier validates real widget payloads.
type HMACVerifier struct {
	secret [sha256.Size]byte
	maxAge time.Duration
	now    func() time.Time
}

// NewHMACVerifier derives the signing key from the bot token.
func NewHMACVerifier(botToken string, maxAge time.Duration) (*HMACVerifier, error) {
	botToken = strings.TrimSpace(botToken)
	if botToken == "" {
		return nil, errors.New("telegram bot token required")
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &HMACVerifier{
		secret: sha256.Sum256([]byte(botToken)),
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// WithClock overrides the verifier clock. Test hook.
func (v *HMACVerifier) WithClock(now func() time.Time) *HMACVerifier {
	v.now = now
	return v
}

// Verify checks the hash over the sorted key=value lines of every field
// except "hash", then the freshness of auth_date.
func (v *HMACVerifier) Verify(fields map[string]string) (Profile, error) {
	provided, ok := fields["hash"]
	if !ok || provided == "" {
		return Profile{}, ErrIncomplete
	}
	if fields["id"] == "" || fields["auth_date"] == "" {
		return Profile{}, ErrIncomplete
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}
	mac := hmac.New(sha256.New, v.secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(provided))) {
		return Profile{}, ErrBadSignature
	}

	unix, err := strconv.ParseInt(fields["auth_date"], 10, 64)
	if err != nil {
		return Profile{}, ErrIncomplete
	}
	authDate := time.Unix(unix, 0)
	if v.now().Sub(authDate) > v.maxAge {
		return Profile{}, ErrStale
	}

	return Profile{
		TelegramID: fields["id"],
		FirstName:  fields["first_name"],
		LastName:   fields["last_name"],
		Username:   fields["username"],
		PhotoURL:   fields["photo_url"],
		AuthDate:   authDate,
	}, nil
}

// MockVerifier accepts anything and returns a fixed demo identity. Dev
// environments only; never wire it in production config.
type MockVerifier struct{}

// DemoTelegramID is the identity the mock verifier hands out.
const DemoTelegramID = "123456789"

func (MockVerifier) Verify(map[string]string) (Profile, error) {
	return Profile{
		TelegramID: DemoTelegramID,
		FirstName:  "Demo",
		LastName:   "User",
		Username:   "demo_user",
		AuthDate:   time.Now(),
	}, nil
}
