package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/shrinkit/internal/domain"
)

type ObjectReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

type ObjectWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

type ObjectStoreFetcher struct {
	Storage ObjectReader
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, src domain.SourceImage) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(src.ObjectKey) == "" {
		return nil, domain.Errorf(domain.KindReadFailure, ReasonReadFailure)
	}

	data, err := f.Storage.ReadObject(ctx, src.ObjectKey)
	if err != nil {
		return nil, domain.NewError(domain.KindReadFailure, ReasonReadFailure, err)
	}
	if len(data) == 0 {
		return nil, domain.Errorf(domain.KindReadFailure, ReasonReadFailure)
	}
	return data, nil
}

type ObjectStoreEmitter struct {
	Storage      ObjectWriter
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, sessionID string, run domain.Run, out domain.ProcessedImage) (domain.ProcessedImage, error) {
	if e.Storage == nil {
		return domain.ProcessedImage{}, errors.New("storage client is required")
	}
	if strings.TrimSpace(run.ID) == "" {
		return domain.ProcessedImage{}, errors.New("run id is required")
	}

	objectKey := ProcessedObjectKey(e.OutputPrefix, sessionID, run.ID, out.MIMEType)
	if err := e.Storage.WriteObject(ctx, objectKey, out.Data, out.MIMEType); err != nil {
		return domain.ProcessedImage{}, fmt.Errorf("write processed image: %w", err)
	}

	out.ObjectKey = objectKey
	out.Data = nil
	return out, nil
}

// SourceObjectKey names one upload. Every upload gets its own key so a run
// never reads bytes that were replaced underneath it.
func SourceObjectKey(sessionID, uploadID string) string {
	return path.Join("uploads", sanitizePathToken(sessionID), sanitizePathToken(uploadID))
}

func ProcessedObjectKey(prefix, sessionID, runID, mimeType string) string {
	return path.Join(
		defaultOutputPrefix(prefix),
		sanitizePathToken(sessionID),
		fmt.Sprintf("%s.%s", sanitizePathToken(runID), FileExtension(mimeType)),
	)
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "outputs"
	}
	return prefix
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
