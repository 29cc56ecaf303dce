package llm

import (
	"context"

	"github.com/scrypster/loreline/pkg/types"
)

// ModelCaller is the abstract model-call collaborator: it sends one chat
// request and returns the model's full text reply. Implementations must
// honor context cancellation, returning ctx.Err() when aborted.
type ModelCaller interface {
	Generate(ctx context.Context, messages []types.Message) (string, error)
	GetModel() string
}
