//go:build !cgo

package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/vectorizer/internal/logging"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without CGO.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support, use the tei provider instead)")

func newFastEmbedModel(_ context.Context, spec fastEmbedSpec, _ *logging.Logger) (Model, error) {
	return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, spec.name, ErrFastEmbedNotAvailable)
}
