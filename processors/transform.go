package processors

import (
	"encoding/json"
	"fmt"

	"github.com/songzhibin97/handlerchain/handler"
	"github.com/songzhibin97/handlerchain/message"
)

// JSONTransform builds a Transformer that round-trips the context
// content through encoding/json and hands the caller the raw bytes to
// rewrite, then decodes fn's result back into the context's content.
func JSONTransform(id string, fn func([]byte) ([]byte, error)) handler.Processor {
	return handler.NewTransformer(id, func(ctx *message.Context) (any, error) {
		raw, err := json.Marshal(ctx.Content())
		if err != nil {
			return nil, fmt.Errorf("json transform %s: marshal content: %w", id, err)
		}

		transformed, err := fn(raw)
		if err != nil {
			return nil, fmt.Errorf("json transform %s: %w", id, err)
		}

		var out any
		if err := json.Unmarshal(transformed, &out); err != nil {
			return nil, fmt.Errorf("json transform %s: unmarshal result: %w", id, err)
		}
		return out, nil
	})
}
