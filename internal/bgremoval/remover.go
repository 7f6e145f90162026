package bgremoval

import (
	"context"

	"github.com/dunamismax/shrinkit/internal/domain"
)

const ReasonNotConfigured = "Background removal is not configured."

// Remover strips the background from an encoded image.
type Remover interface {
	RemoveBackground(ctx context.Context, in domain.Blob) (domain.Blob, error)
}

// Disabled is used when no model credentials are configured.
type Disabled struct{}

func (Disabled) RemoveBackground(context.Context, domain.Blob) (domain.Blob, error) {
	return domain.Blob{}, domain.Errorf(domain.KindRemoteFailure, ReasonNotConfigured)
}
