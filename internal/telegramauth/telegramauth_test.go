package telegramauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testToken = "12345:test-bot-token"

// sign reproduces the widget's signature so tests can mint valid payloads.
func sign(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}
	secret := sha256.Sum256([]byte(testToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func validPayload(authDate time.Time) map[string]string {
	fields := map[string]string{
		"id":         "987654321",
		"first_name": "Jane",
		"last_name":  "Doe",
		"username":   "janedoe",
		"photo_url":  "https://t.me/i/userpic/320/janedoe.jpg",
		"auth_date":  strconv.FormatInt(authDate.Unix(), 10),
	}
	fields["hash"] = sign(fields)
	return fields
}

func newVerifier(t *testing.T, now time.Time) *HMACVerifier {
	t.Helper()
	v, err := NewHMACVerifier(testToken, 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v.WithClock(func() time.Time { return now })
}

func TestVerifyAcceptsSignedPayload(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newVerifier(t, now)

	profile, err := v.Verify(validPayload(now.Add(-time.Minute)))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if profile.TelegramID != "987654321" || profile.FirstName != "Jane" || profile.Username != "janedoe" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newVerifier(t, now)

	fields := validPayload(now.Add(-time.Minute))
	fields["id"] = "1"
	if _, err := v.Verify(fields); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	other, err := NewHMACVerifier("999:other-token", 0)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	other.WithClock(func() time.Time { return now })

	if _, err := other.Verify(validPayload(now.Add(-time.Minute))); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyRejectsStaleAuthDate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newVerifier(t, now)

	if _, err := v.Verify(validPayload(now.Add(-DefaultMaxAge - time.Minute))); !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
}

func TestVerifyRejectsMissingFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newVerifier(t, now)

	for _, drop := range []string{"hash", "id", "auth_date"} {
		fields := validPayload(now.Add(-time.Minute))
		delete(fields, drop)
		if drop != "hash" {
			fields["hash"] = sign(fields)
		}
		if _, err := v.Verify(fields); !errors.Is(err, ErrIncomplete) {
			t.Fatalf("dropping %s: err = %v, want ErrIncomplete", drop, err)
		}
	}
}

func TestMockVerifierHandsOutDemoUser(t *testing.T) {
	profile, err := MockVerifier{}.Verify(nil)
	if err != nil {
		t.Fatalf("mock verify: %v", err)
	}
	if profile.TelegramID != DemoTelegramID || profile.FirstName != "Demo" {
		t.Fatalf("unexpected demo profile: %+v", profile)
	}
}
