package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spacebooks/internal/telegramauth"
	"spacebooks/internal/util"
	"spacebooks/pkg/domain"
)

// UpsertTelegramUser records a verified Telegram identity, creating the
// user on first sign-in and refreshing the profile fields on return
// visits. Wallet address and admin flag survive the refresh.
func (a *App) UpsertTelegramUser(ctx context.Context, profile telegramauth.Profile) (domain.User, error) {
	now := time.Now().UTC()
	user, ok, err := a.store.GetUserByTelegramID(profile.TelegramID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		user = domain.User{
			ID:         util.NewID(),
			TelegramID: profile.TelegramID,
			CreatedAt:  now,
		}
	}
	user.FirstName = profile.FirstName
	user.LastName = profile.LastName
	user.PhotoURL = profile.PhotoURL
	user.UpdatedAt = now
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	a.cacheProfile(ctx, user)
	return user, nil
}

// GetUser resolves a user by id, falling back to the cached snapshot
// profile when the durable store is unreachable.
func (a *App) GetUser(ctx context.Context, id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		if a.snapshot != nil {
			cached, found, snapErr := a.snapshot.CachedProfile(ctx, id)
			if snapErr == nil && found {
				slog.Warn("durable user read failed, serving cached profile", "user_id", id, "err", err)
				return cached, nil
			}
		}
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	a.cacheProfile(ctx, user)
	return user, nil
}

// SetWalletAddress records the user's connected wallet.
func (a *App) SetWalletAddress(ctx context.Context, userID, address string) (domain.User, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.User{}, ErrWalletAddressRequired
	}
	user, err := a.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user.WalletAddress = address
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	a.cacheProfile(ctx, user)
	return user, nil
}

// SetLanguage stores the user's language preference in the snapshot.
func (a *App) SetLanguage(ctx context.Context, userID, code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ErrLanguageRequired
	}
	if a.snapshot == nil {
		return nil
	}
	return a.snapshot.SetLanguage(ctx, userID, code)
}

// Language returns the stored language preference, "" when unset.
func (a *App) Language(ctx context.Context, userID string) (string, error) {
	if a.snapshot == nil {
		return "", nil
	}
	return a.snapshot.Language(ctx, userID)
}

// GrantAdmin flips the user's admin flag. Called only after the admin
// gate verified the unlock code for this session.
func (a *App) GrantAdmin(ctx context.Context, userID string) (domain.User, error) {
	user, err := a.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if user.IsAdmin {
		return user, nil
	}
	user.IsAdmin = true
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	a.cacheProfile(ctx, user)
	return user, nil
}

func (a *App) cacheProfile(ctx context.Context, user domain.User) {
	if a.snapshot == nil {
		return
	}
	if err := a.snapshot.SetCachedProfile(ctx, user); err != nil {
		slog.Warn("profile snapshot update failed", "user_id", user.ID, "err", err)
	}
}
