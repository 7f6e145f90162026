package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func loadedSession(t *testing.T, width, height int) domain.Session {
	t.Helper()
	s := domain.NewSession("session-1", testNow)
	require.NoError(t, Load(&s, domain.SourceImage{
		Filename: "photo.png",
		MIMEType: "image/png",
		Width:    width,
		Height:   height,
	}, testNow))
	return s
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestLoadMovesToConfiguringWithNaturalDimensions(t *testing.T) {
	s := loadedSession(t, 800, 600)

	assert.Equal(t, domain.StateConfiguring, s.State)
	assert.Equal(t, 800, s.Settings.Width)
	assert.Equal(t, 600, s.Settings.Height)
	assert.Equal(t, domain.DefaultQuality, s.Settings.Quality)
	assert.True(t, s.Settings.LockAspect)
}

func TestLoadRejectsDimensionlessSource(t *testing.T) {
	s := domain.NewSession("session-1", testNow)
	assert.Error(t, Load(&s, domain.SourceImage{Width: 0, Height: 10}, testNow))
	assert.Equal(t, domain.StateIdle, s.State)
}

func TestLoadWhileReadyClearsProcessedImage(t *testing.T) {
	s := loadedSession(t, 800, 600)
	run, err := Begin(&s, "run-1", testNow)
	require.NoError(t, err)
	require.NoError(t, Complete(&s, run.ID, domain.ProcessedImage{MIMEType: "image/jpeg", Bytes: 10}, testNow))
	require.Equal(t, domain.StateReady, s.State)

	require.NoError(t, Load(&s, domain.SourceImage{Filename: "next.jpg", MIMEType: "image/jpeg", Width: 40, Height: 20}, testNow))

	assert.Equal(t, domain.StateConfiguring, s.State)
	assert.Nil(t, s.Processed)
	assert.Empty(t, s.FailureReason)
	assert.Equal(t, 40, s.Settings.Width)
	assert.Equal(t, 20, s.Settings.Height)
}

func TestLoadWhileFailedClearsReason(t *testing.T) {
	s := loadedSession(t, 800, 600)
	require.NoError(t, ApplyEdit(&s, Edit{LockAspect: boolPtr(false), Width: intPtr(0)}, testNow))
	_, err := Begin(&s, "run-1", testNow)
	require.Error(t, err)
	require.Equal(t, domain.StateFailed, s.State)

	require.NoError(t, Load(&s, domain.SourceImage{Width: 10, Height: 10}, testNow))
	assert.Equal(t, domain.StateConfiguring, s.State)
	assert.Empty(t, s.FailureReason)
	assert.Empty(t, s.FailureKind)
}

func TestLoadWhileProcessingIsRejected(t *testing.T) {
	s := loadedSession(t, 800, 600)
	_, err := Begin(&s, "run-1", testNow)
	require.NoError(t, err)

	err = Load(&s, domain.SourceImage{Width: 10, Height: 10}, testNow)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 800, s.Source.Width)
}

func TestEditAppliesAspectLock(t *testing.T) {
	s := loadedSession(t, 800, 600)

	require.NoError(t, ApplyEdit(&s, Edit{Width: intPtr(400)}, testNow))
	assert.Equal(t, 400, s.Settings.Width)
	assert.Equal(t, 300, s.Settings.Height)

	require.NoError(t, ApplyEdit(&s, Edit{Height: intPtr(600)}, testNow))
	assert.Equal(t, 800, s.Settings.Width)
	assert.Equal(t, 600, s.Settings.Height)
}

func TestEditWithoutLockLeavesOtherAxis(t *testing.T) {
	s := loadedSession(t, 800, 600)

	require.NoError(t, ApplyEdit(&s, Edit{LockAspect: boolPtr(false), Width: intPtr(123)}, testNow))
	assert.Equal(t, 123, s.Settings.Width)
	assert.Equal(t, 600, s.Settings.Height)
}

func TestEditWithBothAxesKeepsBoth(t *testing.T) {
	s := loadedSession(t, 800, 600)

	require.NoError(t, ApplyEdit(&s, Edit{Width: intPtr(400), Height: intPtr(100)}, testNow))
	assert.Equal(t, 400, s.Settings.Width)
	assert.Equal(t, 100, s.Settings.Height)
	assert.True(t, s.Settings.LockAspect)
}

func TestEditClampsQuality(t *testing.T) {
	s := loadedSession(t, 10, 10)

	require.NoError(t, ApplyEdit(&s, Edit{Quality: intPtr(0)}, testNow))
	assert.Equal(t, 1, s.Settings.Quality)

	require.NoError(t, ApplyEdit(&s, Edit{Quality: intPtr(400)}, testNow))
	assert.Equal(t, 100, s.Settings.Quality)
}

func TestEditAfterReadyReturnsToConfiguring(t *testing.T) {
	s := loadedSession(t, 800, 600)
	run, err := Begin(&s, "run-1", testNow)
	require.NoError(t, err)
	require.NoError(t, Complete(&s, run.ID, domain.ProcessedImage{MIMEType: "image/jpeg"}, testNow))

	require.NoError(t, ApplyEdit(&s, Edit{RemoveBackground: boolPtr(true)}, testNow))
	assert.Equal(t, domain.StateConfiguring, s.State)
	assert.Nil(t, s.Processed)
	assert.True(t, s.Settings.RemoveBackground)
}

func TestEditRequiresSourceAndIdleRun(t *testing.T) {
	empty := domain.NewSession("empty", testNow)
	assert.ErrorIs(t, ApplyEdit(&empty, Edit{Width: intPtr(5)}, testNow), ErrNoSource)

	s := loadedSession(t, 800, 600)
	_, err := Begin(&s, "run-1", testNow)
	require.NoError(t, err)
	assert.ErrorIs(t, ApplyEdit(&s, Edit{Width: intPtr(5)}, testNow), ErrBusy)
	assert.Equal(t, 800, s.Settings.Width)
}

func TestBeginWithNonPositiveWidthFails(t *testing.T) {
	s := loadedSession(t, 800, 600)
	require.NoError(t, ApplyEdit(&s, Edit{LockAspect: boolPtr(false), Width: intPtr(0)}, testNow))

	_, err := Begin(&s, "run-1", testNow)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	assert.Contains(t, err.Error(), "positive")
	assert.Equal(t, domain.StateFailed, s.State)
	assert.Contains(t, s.FailureReason, "positive")
	assert.Empty(t, s.RunID)
}

func TestBeginWithoutSource(t *testing.T) {
	s := domain.NewSession("empty", testNow)
	_, err := Begin(&s, "run-1", testNow)
	assert.ErrorIs(t, err, ErrNoSource)
	assert.Equal(t, domain.StateIdle, s.State)
}

func TestBeginIsNotReentrant(t *testing.T) {
	s := loadedSession(t, 800, 600)
	first, err := Begin(&s, "run-1", testNow)
	require.NoError(t, err)

	_, err = Begin(&s, "run-2", testNow)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, first.ID, s.RunID)
}

func TestBeginSnapshotsSettings(t *testing.T) {
	s := loadedSession(t, 800, 600)
	require.NoError(t, ApplyEdit(&s, Edit{Width: intPtr(200), Quality: intPtr(55)}, testNow))

	run, err := Begin(&s, "run-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 200, run.Settings.Width)
	assert.Equal(t, 150, run.Settings.Height)
	assert.Equal(t, 55, run.Settings.Quality)
	assert.Equal(t, "photo.png", run.Source.Filename)
}

func TestCompleteAndFailRejectStaleRuns(t *testing.T) {
	s := loadedSession(t, 800, 600)
	_, err := Begin(&s, "run-1", testNow)
	require.NoError(t, err)

	assert.ErrorIs(t, Complete(&s, "run-0", domain.ProcessedImage{}, testNow), ErrStaleRun)
	assert.ErrorIs(t, Fail(&s, "run-0", errors.New("x"), testNow), ErrStaleRun)
	assert.Equal(t, domain.StateProcessing, s.State)

	require.NoError(t, Fail(&s, "run-1", domain.Errorf(domain.KindRemoteFailure, "model unavailable"), testNow))
	assert.ErrorIs(t, Complete(&s, "run-1", domain.ProcessedImage{}, testNow), ErrStaleRun)
}

func TestFailRecordsDisplayReason(t *testing.T) {
	s := loadedSession(t, 800, 600)
	_, err := Begin(&s, "run-1", testNow)
	require.NoError(t, err)

	require.NoError(t, Fail(&s, "run-1", domain.Errorf(domain.KindRemoteFailure, "model unavailable"), testNow))
	assert.Equal(t, domain.StateFailed, s.State)
	assert.Equal(t, domain.KindRemoteFailure, s.FailureKind)
	assert.Equal(t, "model unavailable", s.FailureReason)
	assert.Nil(t, s.Processed)

	s2 := loadedSession(t, 800, 600)
	_, err = Begin(&s2, "run-1", testNow)
	require.NoError(t, err)
	require.NoError(t, Fail(&s2, "run-1", errors.New("dial tcp 10.0.0.1:9000: refused"), testNow))
	assert.Equal(t, ReasonUnknown, s2.FailureReason)
}

func TestLockedDimension(t *testing.T) {
	assert.Equal(t, 300, LockedDimension(400, 800, 600))
	assert.Equal(t, 800, LockedDimension(600, 600, 800))
	assert.Equal(t, 1, LockedDimension(1, 1000, 1))
	assert.Equal(t, 1, LockedDimension(0, 800, 600))
	assert.Equal(t, 334, LockedDimension(500, 1499, 1000))
}
