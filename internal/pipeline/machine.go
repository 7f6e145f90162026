package pipeline

import (
	"errors"
	"time"

	"github.com/dunamismax/shrinkit/internal/domain"
)

var (
	ErrBusy          = errors.New("session is already processing")
	ErrNoSource      = errors.New("please upload an image first")
	ErrStaleRun      = errors.New("run is no longer current for this session")
	ErrNotReady      = errors.New("no processed image is available")
	errInvalidSource = errors.New("source image must have positive dimensions")
)

const (
	ReasonNonPositiveDimensions = "Width and Height must be positive values"
	ReasonUnknown               = "An unknown error occurred during processing."
)

// Edit is a partial settings update; nil fields are left untouched.
type Edit struct {
	Width            *int  `json:"width,omitempty"`
	Height           *int  `json:"height,omitempty"`
	LockAspect       *bool `json:"lock_aspect,omitempty"`
	Quality          *int  `json:"quality,omitempty"`
	RemoveBackground *bool `json:"remove_background,omitempty"`
}

// Load accepts a new source image and moves the session to configuring.
// Lock, quality and background-removal preferences survive a reload.
func Load(s *domain.Session, src domain.SourceImage, now time.Time) error {
	if s.State == domain.StateProcessing {
		return ErrBusy
	}
	if src.Width <= 0 || src.Height <= 0 {
		return errInvalidSource
	}

	s.Source = &src
	s.Settings.Width = src.Width
	s.Settings.Height = src.Height
	s.State = domain.StateConfiguring
	clearOutcome(s)
	s.RunID = ""
	s.UpdatedAt = now
	return nil
}

// ApplyEdit changes settings while a source is loaded and no run is active.
func ApplyEdit(s *domain.Session, e Edit, now time.Time) error {
	if s.Source == nil {
		return ErrNoSource
	}
	if s.State == domain.StateProcessing {
		return ErrBusy
	}

	if e.LockAspect != nil {
		s.Settings.LockAspect = *e.LockAspect
	}
	// The lock derives the other axis only when a single axis is edited.
	switch {
	case e.Width != nil && e.Height != nil:
		s.Settings.Width = *e.Width
		s.Settings.Height = *e.Height
	case e.Width != nil:
		s.Settings.Width = *e.Width
		if s.Settings.LockAspect {
			s.Settings.Height = LockedDimension(*e.Width, s.Source.Width, s.Source.Height)
		}
	case e.Height != nil:
		s.Settings.Height = *e.Height
		if s.Settings.LockAspect {
			s.Settings.Width = LockedDimension(*e.Height, s.Source.Height, s.Source.Width)
		}
	}
	if e.Quality != nil {
		s.Settings.Quality = min(domain.MaxQuality, max(domain.MinQuality, *e.Quality))
	}
	if e.RemoveBackground != nil {
		s.Settings.RemoveBackground = *e.RemoveBackground
	}

	s.State = domain.StateConfiguring
	clearOutcome(s)
	s.UpdatedAt = now
	return nil
}

// Begin starts a run. Non-positive dimensions fail the session without
// starting one; the returned *domain.Error describes the failure.
func Begin(s *domain.Session, runID string, now time.Time) (domain.Run, error) {
	if s.Source == nil {
		return domain.Run{}, ErrNoSource
	}
	if s.State == domain.StateProcessing {
		return domain.Run{}, ErrBusy
	}

	if s.Settings.Width <= 0 || s.Settings.Height <= 0 {
		err := domain.Errorf(domain.KindInvalidInput, ReasonNonPositiveDimensions)
		s.State = domain.StateFailed
		s.Processed = nil
		s.FailureKind = err.Kind
		s.FailureReason = err.Reason
		s.RunID = ""
		s.UpdatedAt = now
		return domain.Run{}, err
	}

	s.State = domain.StateProcessing
	clearOutcome(s)
	s.RunID = runID
	s.UpdatedAt = now

	return domain.Run{
		ID:       runID,
		Source:   *s.Source,
		Settings: s.Settings,
	}, nil
}

func Complete(s *domain.Session, runID string, out domain.ProcessedImage, now time.Time) error {
	if err := checkRun(s, runID); err != nil {
		return err
	}
	s.State = domain.StateReady
	s.Processed = &out
	s.FailureKind = ""
	s.FailureReason = ""
	s.UpdatedAt = now
	return nil
}

func Fail(s *domain.Session, runID string, cause error, now time.Time) error {
	if err := checkRun(s, runID); err != nil {
		return err
	}
	s.State = domain.StateFailed
	s.Processed = nil
	s.FailureKind, s.FailureReason = failure(cause)
	s.UpdatedAt = now
	return nil
}

func checkRun(s *domain.Session, runID string) error {
	if s.State != domain.StateProcessing || s.RunID != runID {
		return ErrStaleRun
	}
	return nil
}

func clearOutcome(s *domain.Session) {
	s.Processed = nil
	s.FailureKind = ""
	s.FailureReason = ""
}

// failure maps an error onto what the session shows; infrastructure errors
// never leak into the display reason.
func failure(err error) (domain.ErrorKind, string) {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Kind, de.Reason
	}
	return "", ReasonUnknown
}
