package api

import (
	"time"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/dunamismax/shrinkit/internal/pipeline"
)

type sessionView struct {
	ID        string          `json:"id"`
	State     domain.State    `json:"state"`
	Source    *sourceView     `json:"source,omitempty"`
	Settings  domain.Settings `json:"settings"`
	Processed *processedView  `json:"processed,omitempty"`
	Failure   *failureView    `json:"failure,omitempty"`
	RunID     string          `json:"run_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type sourceView struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Bytes    int    `json:"bytes"`
}

type processedView struct {
	Filename    string `json:"filename"`
	MIMEType    string `json:"mime_type"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Bytes       int    `json:"bytes"`
	BytesSaved  int    `json:"bytes_saved"`
	DownloadURL string `json:"download_url"`
	PreviewURL  string `json:"preview_url"`
}

type failureView struct {
	Kind   domain.ErrorKind `json:"kind,omitempty"`
	Reason string           `json:"reason"`
}

func newSessionView(s domain.Session) sessionView {
	view := sessionView{
		ID:        s.ID,
		State:     s.State,
		Settings:  s.Settings,
		RunID:     s.RunID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}

	if s.Source != nil {
		view.Source = &sourceView{
			Filename: s.Source.Filename,
			MIMEType: s.Source.MIMEType,
			Width:    s.Source.Width,
			Height:   s.Source.Height,
			Bytes:    s.Source.Bytes,
		}
	}

	if s.State == domain.StateReady && s.Processed != nil {
		var original string
		sourceBytes := 0
		if s.Source != nil {
			original = s.Source.Filename
			sourceBytes = s.Source.Bytes
		}
		view.Processed = &processedView{
			Filename:    pipeline.DownloadFilename(original, s.Processed.MIMEType),
			MIMEType:    s.Processed.MIMEType,
			Width:       s.Processed.Width,
			Height:      s.Processed.Height,
			Bytes:       s.Processed.Bytes,
			BytesSaved:  max(0, sourceBytes-s.Processed.Bytes),
			DownloadURL: "/v1/sessions/" + s.ID + "/download",
			PreviewURL:  "/v1/sessions/" + s.ID + "/preview",
		}
	}

	if s.State == domain.StateFailed {
		view.Failure = &failureView{Kind: s.FailureKind, Reason: s.FailureReason}
	}
	return view
}
