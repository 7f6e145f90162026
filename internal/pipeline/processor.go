package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/dunamismax/shrinkit/internal/transform"
)

// BackgroundRemover is the hosted model that strips an image's background.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, in domain.Blob) (domain.Blob, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, src domain.SourceImage) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, sessionID string, run domain.Run, out domain.ProcessedImage) (domain.ProcessedImage, error)
}

// Processor executes one run: fetch source, transform, optionally remove
// the background, emit. The intermediate JPEG is never emitted when the
// removal step fails.
type Processor struct {
	fetcher Fetcher
	engine  transform.Engine
	remover BackgroundRemover
	emitter Emitter
}

func NewProcessor(fetcher Fetcher, engine transform.Engine, remover BackgroundRemover, emitter Emitter) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if engine == nil {
		return nil, errors.New("transform engine is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	return &Processor{
		fetcher: fetcher,
		engine:  engine,
		remover: remover,
		emitter: emitter,
	}, nil
}

// NewLocalProcessor keeps every byte in memory.
func NewLocalProcessor(engine transform.Engine, remover BackgroundRemover) (*Processor, error) {
	return NewProcessor(MemoryFetcher{}, engine, remover, MemoryEmitter{})
}

func (p *Processor) Process(ctx context.Context, sessionID string, run domain.Run) (domain.ProcessedImage, error) {
	source, err := p.fetcher.Fetch(ctx, run.Source)
	if err != nil {
		return domain.ProcessedImage{}, fmt.Errorf("fetch stage: %w", err)
	}

	encoded, err := p.engine.ResizeAndCompress(ctx, transform.Request{
		Data:     source,
		MIMEType: run.Source.MIMEType,
		Width:    run.Settings.Width,
		Height:   run.Settings.Height,
		Quality:  run.Settings.Quality,
	})
	if err != nil {
		return domain.ProcessedImage{}, fmt.Errorf("transform stage: %w", err)
	}

	result := domain.Blob{MIMEType: transform.OutputMIMEType, Data: encoded}
	if run.Settings.RemoveBackground {
		result, err = p.removeBackground(ctx, result)
		if err != nil {
			return domain.ProcessedImage{}, fmt.Errorf("background stage: %w", err)
		}
	}

	out := domain.ProcessedImage{
		MIMEType: result.MIMEType,
		Bytes:    len(result.Data),
		Data:     result.Data,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(result.Data)); err == nil {
		out.Width = cfg.Width
		out.Height = cfg.Height
	}

	emitted, err := p.emitter.Emit(ctx, sessionID, run, out)
	if err != nil {
		return domain.ProcessedImage{}, fmt.Errorf("emit stage: %w", err)
	}
	return emitted, nil
}

func (p *Processor) removeBackground(ctx context.Context, in domain.Blob) (domain.Blob, error) {
	if p.remover == nil {
		return domain.Blob{}, domain.Errorf(domain.KindRemoteFailure, "Background removal is not configured.")
	}

	out, err := p.remover.RemoveBackground(ctx, in)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return domain.Blob{}, err
		}
		return domain.Blob{}, domain.NewError(domain.KindRemoteFailure, err.Error(), err)
	}
	if len(out.Data) == 0 {
		return domain.Blob{}, domain.Errorf(domain.KindRemoteFailure, domain.ReasonNoImage)
	}
	if out.MIMEType == "" {
		out.MIMEType = "image/png"
	}
	return out, nil
}

type MemoryFetcher struct{}

func (MemoryFetcher) Fetch(ctx context.Context, src domain.SourceImage) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if len(src.Data) == 0 {
		return nil, domain.Errorf(domain.KindReadFailure, ReasonReadFailure)
	}
	return src.Data, nil
}

type MemoryEmitter struct{}

func (MemoryEmitter) Emit(_ context.Context, _ string, _ domain.Run, out domain.ProcessedImage) (domain.ProcessedImage, error) {
	return out, nil
}
