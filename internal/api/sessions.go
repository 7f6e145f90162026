package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/dunamismax/shrinkit/internal/pipeline"
	"github.com/dunamismax/shrinkit/internal/queue"
	"github.com/dunamismax/shrinkit/internal/storage"
	"github.com/dunamismax/shrinkit/internal/store"
	"go.uber.org/zap"
)

const multipartMemoryBytes = 8 << 20

type upload struct {
	filename string
	mimeType string
	data     []byte
}

type processResponse struct {
	Session sessionView `json:"session"`
	Queue   string      `json:"queue"`
	TaskID  string      `json:"task_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	webhookURL, err := parseWebhookURL(r.FormValue("webhook_url"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	src, err := pipeline.DecodeSource(up.filename, up.mimeType, up.data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := s.now()
	session := domain.NewSession(s.newID(), now)
	session.WebhookURL = webhookURL

	if err := s.storeSource(r.Context(), session.ID, &src); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := pipeline.Load(&session, src, now); err != nil {
		s.removeObjects(r.Context(), src.ObjectKey)
		s.writeError(w, r, err)
		return
	}

	created, err := s.sessions.Create(r.Context(), session)
	if err != nil {
		s.removeObjects(r.Context(), src.ObjectKey)
		s.writeError(w, r, fmt.Errorf("create session: %w", err))
		return
	}

	s.logger.Info("session created",
		zap.String("session_id", created.ID),
		zap.String("mime_type", src.MIMEType),
		zap.Int("width", src.Width),
		zap.Int("height", src.Height),
		zap.Int("bytes", src.Bytes),
	)
	writeJSON(w, http.StatusCreated, newSessionView(created))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("load session: %w", err))
		return
	}
	if !ok {
		s.writeError(w, r, store.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func (s *Server) handleReplaceSource(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	src, err := pipeline.DecodeSource(up.filename, up.mimeType, up.data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.storeSource(r.Context(), sessionID, &src); err != nil {
		s.writeError(w, r, err)
		return
	}

	var previous domain.Session
	updated, err := store.Mutate(r.Context(), s.sessions, sessionID, func(session *domain.Session) error {
		previous = *session
		return pipeline.Load(session, src, s.now())
	})
	if err != nil {
		s.removeObjects(r.Context(), src.ObjectKey)
		s.writeError(w, r, err)
		return
	}

	s.removeObjects(r.Context(), sourceKey(previous), processedKey(previous))
	writeJSON(w, http.StatusOK, newSessionView(updated))
}

func (s *Server) handleEditSettings(w http.ResponseWriter, r *http.Request) {
	var edit pipeline.Edit
	if err := decodeJSON(r, &edit); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var previous domain.Session
	updated, err := store.Mutate(r.Context(), s.sessions, r.PathValue("id"), func(session *domain.Session) error {
		previous = *session
		return pipeline.ApplyEdit(session, edit, s.now())
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.removeObjects(r.Context(), processedKey(previous))
	writeJSON(w, http.StatusOK, newSessionView(updated))
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	runID := s.newID()

	var previous domain.Session
	updated, err := store.Mutate(r.Context(), s.sessions, sessionID, func(session *domain.Session) error {
		previous = *session
		_, err := pipeline.Begin(session, runID, s.now())
		return err
	})
	if err != nil {
		if domain.KindOf(err) != "" {
			// Begin recorded a failure and dropped the previous result.
			s.removeObjects(r.Context(), processedKey(previous))
		}
		s.writeError(w, r, err)
		return
	}
	s.removeObjects(r.Context(), processedKey(previous))

	info, err := s.queueClient.EnqueueShrinkImage(r.Context(), queue.ShrinkImagePayload{
		SessionID:   sessionID,
		RunID:       runID,
		RequestedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("enqueue failed", zap.String("session_id", sessionID), zap.String("run_id", runID), zap.Error(err))
		if _, failErr := store.Mutate(r.Context(), s.sessions, sessionID, func(session *domain.Session) error {
			return pipeline.Fail(session, runID, err, s.now())
		}); failErr != nil {
			s.logger.Error("record enqueue failure", zap.String("session_id", sessionID), zap.Error(failErr))
		}
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "failed to queue processing run", Kind: "queue_unavailable"})
		return
	}

	s.metrics.queueEnqueued.WithLabelValues(info.Queue).Inc()
	writeJSON(w, http.StatusAccepted, processResponse{
		Session: newSessionView(updated),
		Queue:   info.Queue,
		TaskID:  info.ID,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	session, err := s.readySession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filename := pipeline.DownloadFilename(session.Source.Filename, session.Processed.MIMEType)

	if r.URL.Query().Get("redirect") == "true" {
		if presigner, ok := s.objects.(storage.Presigner); ok {
			link, err := presigner.PresignedGetURL(r.Context(), session.Processed.ObjectKey, filename, s.downloadURLExpiry)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			http.Redirect(w, r, link, http.StatusFound)
			return
		}
	}

	data, err := s.objects.ReadObject(r.Context(), session.Processed.ObjectKey)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("read processed image: %w", err))
		return
	}

	w.Header().Set("Content-Type", session.Processed.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	session, err := s.readySession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, err := s.objects.ReadObject(r.Context(), session.Processed.ObjectKey)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("read processed image: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data_uri":  domain.Blob{MIMEType: session.Processed.MIMEType, Data: data}.DataURI(),
		"mime_type": session.Processed.MIMEType,
		"width":     session.Processed.Width,
		"height":    session.Processed.Height,
		"bytes":     len(data),
	})
}

func (s *Server) readySession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return domain.Session{}, store.ErrSessionNotFound
	}
	if session.State != domain.StateReady || session.Processed == nil || session.Source == nil {
		return domain.Session{}, pipeline.ErrNotReady
	}
	return session, nil
}

// readUpload reads the multipart "file" field. On failure it has already
// written the response.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error: fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes),
				Kind:  "too_large",
			})
			return upload{}, false
		}
		writeBadRequest(w, "expected multipart/form-data with a file field")
		return upload{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "missing file field")
		return upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, domain.NewError(domain.KindReadFailure, pipeline.ReasonReadFailure, err))
		return upload{}, false
	}

	return upload{
		filename: header.Filename,
		mimeType: header.Header.Get("Content-Type"),
		data:     data,
	}, true
}

// storeSource writes the upload under a fresh key and drops the in-memory
// bytes from src.
func (s *Server) storeSource(ctx context.Context, sessionID string, src *domain.SourceImage) error {
	src.ObjectKey = pipeline.SourceObjectKey(sessionID, s.newID())
	if err := s.objects.WriteObject(ctx, src.ObjectKey, src.Data, src.MIMEType); err != nil {
		return fmt.Errorf("store source image: %w", err)
	}
	src.Data = nil
	return nil
}

func (s *Server) removeObjects(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.objects.RemoveObject(ctx, key); err != nil {
			s.logger.Warn("remove object failed", zap.String("object_key", key), zap.Error(err))
		}
	}
}

func sourceKey(s domain.Session) string {
	if s.Source == nil {
		return ""
	}
	return s.Source.ObjectKey
}

func processedKey(s domain.Session) string {
	if s.Processed == nil {
		return ""
	}
	return s.Processed.ObjectKey
}

func parseWebhookURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("webhook_url must be an absolute http(s) URL")
	}
	return u.String(), nil
}
