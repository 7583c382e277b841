package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/internal/event"
)

const (
	eventBuffer       = 64
	eventWriteTimeout = 5 * time.Second
)

// handleEvents streams every bus event to a websocket client as JSON.
// Events are dropped for a client that falls behind.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// The stream outlives the server's WriteTimeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	ch := make(chan event.Event, eventBuffer)
	unsubscribe := s.deps.Events.SubscribeAll(func(_ context.Context, e event.Event) {
		select {
		case ch <- e:
		default:
		}
	})
	defer unsubscribe()

	s.logger.Debug("event stream opened", zap.String("remote", r.RemoteAddr))
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("event stream closed", zap.String("remote", r.RemoteAddr))
			return
		case e := <-ch:
			wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(wctx, conn, e)
			cancel()
			if err != nil {
				s.logger.Debug("event stream write failed", zap.Error(err))
				return
			}
		}
	}
}
