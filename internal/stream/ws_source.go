package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lunamsg/syncd/internal/fault"
	"github.com/lunamsg/syncd/internal/transport"
	"go.uber.org/zap"
)

// quoteFrame is the JSON payload on the quote socket.
type quoteFrame struct {
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// WSSource subscribes to the quote socket. One Subscribe call is one
// stream: when the connection drops the channel closes and the source
// does not redial.
type WSSource struct {
	URL    string
	Creds  transport.CredentialProvider
	Logger *zap.Logger
}

func (w *WSSource) Subscribe(ctx context.Context) (<-chan Quote, error) {
	token, err := w.Creds.Token(ctx)
	if err != nil {
		return nil, &fault.TransportFault{Op: "quote credential", Auth: true, Err: err}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.URL, http.Header{
		"Authorization": []string{"Bearer " + token},
	})
	if err != nil {
		return nil, &fault.TransportFault{Op: "quote connect", Err: err}
	}

	out := make(chan Quote)
	go func() {
		defer close(out)
		defer func() { _ = conn.Close() }()

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-done:
			}
		}()
		defer close(done)

		for {
			var f quoteFrame
			if err := conn.ReadJSON(&f); err != nil {
				if ctx.Err() == nil {
					w.Logger.Warn("quote stream closed", zap.Error(err))
				}
				return
			}
			at := time.UnixMilli(f.Timestamp)
			if f.Timestamp == 0 {
				at = time.Now()
			}
			select {
			case out <- Quote{Value: f.Value, At: at}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
