// Package destinations ships ready-made destinations built on the
// transports the core engine treats as opaque collaborators, grounded
// in the gateway's own HTTP/WebSocket/gRPC dependency surface.
package destinations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/songzhibin97/handlerchain/handler"
	"github.com/songzhibin97/handlerchain/message"
)

// HTTPDestination posts the context content as JSON to url and returns
// the response status code on success (2xx). A nil client defaults to
// http.DefaultClient.
func HTTPDestination(id, url string, client *http.Client, retry *handler.RetryConfig) handler.Destination {
	if client == nil {
		client = http.DefaultClient
	}
	return handler.NewDestination(id, func(ctx *message.Context) (any, error) {
		raw, err := json.Marshal(ctx.Content())
		if err != nil {
			return nil, fmt.Errorf("http destination %s: marshal content: %w", id, err)
		}

		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("http destination %s: build request: %w", id, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http destination %s: %w", id, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("http destination %s: unexpected status %d", id, resp.StatusCode)
		}
		return resp.StatusCode, nil
	}, retry)
}
