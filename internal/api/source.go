package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/warpdl/vodkeep/internal/model"
)

const (
	defaultItemLimit = 20
	maxItemLimit     = 100
)

// SearchOwners searches channels by name.
func (a *Api) SearchOwners(ctx context.Context, query string) ([]model.Owner, error) {
	owners, err := a.source.SearchChannels(ctx, strings.TrimSpace(query))
	if owners == nil && err == nil {
		owners = []model.Owner{}
	}
	return owners, err
}

// ListItems returns an owner's most recent archived items.
func (a *Api) ListItems(ctx context.Context, ownerID string, limit int) ([]*model.Item, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: missing owner id", ErrInvalidParams)
	}
	switch {
	case limit <= 0:
		limit = defaultItemLimit
	case limit > maxItemLimit:
		limit = maxItemLimit
	}
	items, err := a.source.ListRecentItems(ctx, ownerID, limit)
	if items == nil && err == nil {
		items = []*model.Item{}
	}
	return items, err
}

// DownloaderStatus reports whether the external downloader can be run.
type DownloaderStatus struct {
	Binary    string `json:"binary"`
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CheckDownloader probes the external downloader.
func (a *Api) CheckDownloader(ctx context.Context) DownloaderStatus {
	if a.downloader == nil {
		return DownloaderStatus{Error: "no downloader configured"}
	}
	st := DownloaderStatus{Binary: a.downloader.Binary()}
	v, err := a.downloader.Version(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Installed = true
	st.Version = v
	return st
}
