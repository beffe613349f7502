package model

import (
	"errors"
	"testing"
	"time"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPending, true},
		{StatusPending, StatusDownloading, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusDownloading, StatusDownloading, true},
		{StatusDownloading, StatusCompleted, true},
		{StatusDownloading, StatusFailed, true},
		{StatusDownloading, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusDownloading, false},
		{StatusFailed, StatusFailed, true},
		{Status("paused"), StatusPending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestQuality_MaxHeight(t *testing.T) {
	tests := []struct {
		q      Quality
		height int
		ok     bool
	}{
		{Quality1080p60, 1080, true},
		{Quality720p, 720, true},
		{Quality("144p30"), 144, true},
		{QualitySource, 0, false},
		{QualityAudioOnly, 0, false},
		{Quality("p60"), 0, false},
		{Quality("720"), 0, false},
	}
	for _, tt := range tests {
		h, ok := tt.q.MaxHeight()
		if h != tt.height || ok != tt.ok {
			t.Errorf("%q: got (%d, %v), want (%d, %v)", tt.q, h, ok, tt.height, tt.ok)
		}
	}
}

func TestQuality_Validate(t *testing.T) {
	for _, q := range []Quality{QualitySource, QualityAudioOnly, Quality480p, Quality1080p60} {
		if err := q.Validate(); err != nil {
			t.Errorf("%q: unexpected error %v", q, err)
		}
	}
	for _, q := range []Quality{"", "best", "hd"} {
		if err := q.Validate(); !errors.Is(err, ErrInvalidQuality) {
			t.Errorf("%q: expected ErrInvalidQuality, got %v", q, err)
		}
	}
	if got := Quality("").OrDefault(Quality720p); got != Quality720p {
		t.Errorf("OrDefault: got %q", got)
	}
}

func TestScheduledJob_CloneIsDeep(t *testing.T) {
	now := time.Now()
	j := &ScheduledJob{ID: "j1", LastRunAt: &now, NextRunAt: &now}
	c := j.Clone()
	*c.LastRunAt = now.Add(time.Hour)
	if !j.LastRunAt.Equal(now) {
		t.Fatal("clone shares LastRunAt with the original")
	}
}
