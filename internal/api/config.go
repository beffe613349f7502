package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/warpdl/vodkeep/internal/model"
	"github.com/warpdl/vodkeep/internal/queue"
	"github.com/warpdl/vodkeep/internal/twitch"
	"github.com/warpdl/vodkeep/pkg/credman/keyring"
)

// SettingsPatch changes the fields that are set.
type SettingsPatch struct {
	ClientID               *string        `json:"clientId,omitempty"`
	ClientSecret           *string        `json:"clientSecret,omitempty"`
	DownloadPath           *string        `json:"downloadPath,omitempty"`
	MaxConcurrentDownloads *int           `json:"maxConcurrentDownloads,omitempty"`
	PreferredQuality       *model.Quality `json:"preferredQuality,omitempty"`
}

// SettingsView is the runtime configuration as shown to clients. The
// secret itself is never returned.
type SettingsView struct {
	model.Settings
	HasClientSecret    bool   `json:"hasClientSecret"`
	ClientSecretSource string `json:"clientSecretSource,omitempty"`
}

// Settings returns the current runtime settings.
func (a *Api) Settings() model.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// SettingsView returns the settings with the secret's availability.
func (a *Api) SettingsView() SettingsView {
	v := SettingsView{Settings: a.Settings()}
	if a.secrets != nil {
		if s, source, err := a.secrets.Get(); err == nil && s != "" {
			v.HasClientSecret = true
			v.ClientSecretSource = source
		}
	}
	return v
}

// UpdateSettings validates and applies p, persists the result and pushes
// the concurrency limit and download directory to the queue.
func (a *Api) UpdateSettings(ctx context.Context, p SettingsPatch) (model.Settings, error) {
	next, credsChanged, err := a.updateSettings(ctx, p)
	if err != nil {
		return next, err
	}
	// The token cache calls credentials with its own lock held, so it is
	// invalidated only after a.mu is released.
	if credsChanged && a.tokens != nil {
		a.tokens.Invalidate()
	}
	return next, nil
}

func (a *Api) updateSettings(ctx context.Context, p SettingsPatch) (model.Settings, bool, error) {
	a.updateMu.Lock()
	defer a.updateMu.Unlock()
	next, credsChanged, err := a.applySettings(ctx, p)
	if err != nil {
		return next, false, err
	}
	if err := a.queue.SetConcurrency(next.MaxConcurrentDownloads); err != nil {
		return next, false, err
	}
	a.queue.SetDownloadDir(next.DownloadPath)
	return next, credsChanged, nil
}

func (a *Api) applySettings(ctx context.Context, p SettingsPatch) (model.Settings, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.settings
	credsChanged := false
	if p.ClientID != nil {
		id := strings.TrimSpace(*p.ClientID)
		credsChanged = id != next.ClientID
		next.ClientID = id
	}
	if p.DownloadPath != nil {
		dir := strings.TrimSpace(*p.DownloadPath)
		if dir == "" {
			return a.settings, false, queue.ErrInvalidDownloadPath
		}
		next.DownloadPath = dir
	}
	if p.MaxConcurrentDownloads != nil {
		if *p.MaxConcurrentDownloads < 1 {
			return a.settings, false, queue.ErrInvalidConcurrency
		}
		next.MaxConcurrentDownloads = *p.MaxConcurrentDownloads
	}
	if p.PreferredQuality != nil {
		if err := p.PreferredQuality.Validate(); err != nil {
			return a.settings, false, err
		}
		next.PreferredQuality = *p.PreferredQuality
	}

	if p.ClientSecret != nil {
		if a.secrets == nil {
			return a.settings, false, errors.New("no secret store configured")
		}
		if err := a.secrets.Set(strings.TrimSpace(*p.ClientSecret)); err != nil {
			return a.settings, false, fmt.Errorf("store client secret: %w", err)
		}
		credsChanged = true
	}
	if err := a.store.SaveSettings(ctx, next); err != nil {
		return a.settings, false, err
	}
	a.settings = next
	return next, credsChanged, nil
}

// credentials feeds the token cache from the settings and secret store.
func (a *Api) credentials(context.Context) (string, string, error) {
	clientID := a.Settings().ClientID
	if clientID == "" || a.secrets == nil {
		return "", "", twitch.ErrMissingCredentials
	}
	secret, _, err := a.secrets.Get()
	if errors.Is(err, keyring.ErrNotFound) || (err == nil && secret == "") {
		return "", "", twitch.ErrMissingCredentials
	}
	if err != nil {
		return "", "", err
	}
	return clientID, secret, nil
}
