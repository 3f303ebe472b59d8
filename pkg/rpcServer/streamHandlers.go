package rpcServer

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Layr-Labs/agentpay/pkg/eventBus/eventBusTypes"
	"github.com/Layr-Labs/agentpay/pkg/utils"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type wsWriter interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

// streamReceipts pushes each newly recorded receipt for the user over a websocket. The subscription is taken
// before the upgrade so nothing recorded after the handshake is missed.
func (rpc *RpcServer) streamReceipts(w http.ResponseWriter, r *http.Request) {
	if rpc.eventBus == nil {
		writeError(w, http.StatusServiceUnavailable, "receipt stream is not enabled")
		return
	}
	userId := chi.URLParam(r, "userId")

	consumer := &eventBusTypes.Consumer{
		Id:      eventBusTypes.ConsumerId(utils.NewId()),
		Context: r.Context(),
		Channel: make(chan *eventBusTypes.Event, 64),
		Filter:  eventBusTypes.ReceiptsForUser(userId),
	}
	rpc.eventBus.Subscribe(consumer)
	defer rpc.eventBus.Unsubscribe(consumer)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	// CloseRead discards client messages and cancels ctx once the client goes away
	ctx := conn.CloseRead(r.Context())
	if err := streamReceipts(ctx, consumer.Channel, conn); err != nil {
		rpc.Logger.Sugar().Debugw("Receipt stream ended", zap.String("userId", userId), zap.Error(err))
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func streamReceipts(ctx context.Context, events <-chan *eventBusTypes.Event, writer wsWriter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			data, ok := evt.Data.(*eventBusTypes.ReceiptRecordedData)
			if !ok || data.Receipt == nil {
				continue
			}
			payload, err := json.Marshal(convertReceipt(data.Receipt))
			if err != nil {
				return err
			}
			if err := writer.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		}
	}
}
