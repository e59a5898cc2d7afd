package destinations

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"

	"github.com/songzhibin97/handlerchain/handler"
	"github.com/songzhibin97/handlerchain/message"
)

// GRPCRequest is the generic envelope sent to a GRPCDestination's unary
// method: the serialized content plus the originating message id.
type GRPCRequest struct {
	MessageID string `json:"messageId"`
	Content   []byte `json:"content"`
}

// GRPCReply is the generic envelope a GRPCDestination's unary method is
// expected to return.
type GRPCReply struct {
	Accepted bool   `json:"accepted"`
	Detail   string `json:"detail,omitempty"`
}

// GRPCDestination delivers content via a unary call on conn's
// fullMethod, using the generic grpc.ClientConnInterface/Invoke path
// rather than generated protobuf stubs (the engine has no schema of its
// own to codegen against), grounded in the gateway's own
// google.golang.org/grpc dependency for its controller API. conn must be
// configured with a codec that can encode *GRPCRequest/*GRPCReply
// (e.g. a JSON codec registered via encoding.RegisterCodec) since
// neither type implements proto.Message.

func GRPCDestination(id, fullMethod string, conn grpc.ClientConnInterface, retry *handler.RetryConfig) handler.Destination {
	return handler.NewDestination(id, func(ctx *message.Context) (any, error) {
		raw, err := json.Marshal(ctx.Content())
		if err != nil {
			return nil, fmt.Errorf("grpc destination %s: marshal content: %w", id, err)
		}

		req := &GRPCRequest{MessageID: ctx.ID(), Content: raw}
		reply := &GRPCReply{}
		if err := conn.Invoke(context.Background(), fullMethod, req, reply); err != nil {
			return nil, fmt.Errorf("grpc destination %s: %w", id, err)
		}
		if !reply.Accepted {
			return nil, fmt.Errorf("grpc destination %s: rejected: %s", id, reply.Detail)
		}
		return reply, nil
	}, retry)
}
