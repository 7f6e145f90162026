package domain

import (
	"time"
)

type State string

const (
	StateIdle        State = "idle"
	StateConfiguring State = "configuring"
	StateProcessing  State = "processing"
	StateReady       State = "ready"
	StateFailed      State = "failed"

	DefaultQuality = 80
	MinQuality     = 1
	MaxQuality     = 100
)

// Settings are the user-facing knobs consumed when a run begins.
type Settings struct {
	Width            int  `json:"width"`
	Height           int  `json:"height"`
	LockAspect       bool `json:"lock_aspect"`
	Quality          int  `json:"quality"`
	RemoveBackground bool `json:"remove_background"`
}

func DefaultSettings() Settings {
	return Settings{
		LockAspect: true,
		Quality:    DefaultQuality,
	}
}

// SourceImage is immutable once loaded. Data is only populated for
// in-process pipelines; servers keep the bytes in object storage.
type SourceImage struct {
	Filename  string `json:"filename"`
	MIMEType  string `json:"mime_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
	ObjectKey string `json:"object_key,omitempty"`
	Data      []byte `json:"-"`
}

type ProcessedImage struct {
	MIMEType  string `json:"mime_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Bytes     int    `json:"bytes"`
	ObjectKey string `json:"object_key,omitempty"`
	Data      []byte `json:"-"`
}

func (p ProcessedImage) Blob() Blob {
	return Blob{MIMEType: p.MIMEType, Data: p.Data}
}

type Session struct {
	ID            string          `json:"id"`
	State         State           `json:"state"`
	Source        *SourceImage    `json:"source,omitempty"`
	Settings      Settings        `json:"settings"`
	Processed     *ProcessedImage `json:"processed,omitempty"`
	FailureKind   ErrorKind       `json:"failure_kind,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	RunID         string          `json:"run_id,omitempty"`
	WebhookURL    string          `json:"webhook_url,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func NewSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		State:     StateIdle,
		Settings:  DefaultSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Run is the read-only snapshot a processing run works from.
type Run struct {
	ID       string
	Source   SourceImage
	Settings Settings
}
