package ollama

import (
	"context"

	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/resilience"
)

// call runs one request through the executor; transient failures surface as
// domain.ErrTemporary.
func (c *Client) call(ctx context.Context, path string, payload any, out any, operation string) error {
	err := c.executor.Execute(ctx, "ollama."+operation, func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}, resilience.ClassifyHTTPError)
	return resilience.MarkTemporary("ollama "+operation, err, resilience.ClassifyHTTPError)
}
