package destinations

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/songzhibin97/handlerchain/handler"
	"github.com/songzhibin97/handlerchain/message"
)

// WebSocketDestination dials url once per invocation and writes the
// serialized content as a single text frame, grounded in the gateway's
// own dependency on gorilla/websocket for its proxy upgrade path. A nil
// dialer defaults to websocket.DefaultDialer.
func WebSocketDestination(id, url string, dialer *websocket.Dialer, retry *handler.RetryConfig) handler.Destination {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return handler.NewDestination(id, func(ctx *message.Context) (any, error) {
		raw, err := json.Marshal(ctx.Content())
		if err != nil {
			return nil, fmt.Errorf("websocket destination %s: marshal content: %w", id, err)
		}

		conn, _, err := dialer.Dial(url, nil)
		if err != nil {
			return nil, fmt.Errorf("websocket destination %s: dial: %w", id, err)
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return nil, fmt.Errorf("websocket destination %s: write: %w", id, err)
		}
		return len(raw), nil
	}, retry)
}
