package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/watchtower/internal/events"
)

const (
	streamBuffer   = 64
	streamPing     = 30 * time.Second
	streamWriteTTL = 10 * time.Second
)

// handleNoticeStream upgrades to a websocket and forwards bus events to the
// client. Only dispatched notices are sent unless ?types= lists others.
// Events are dropped for clients that cannot keep up.
func (s *Server) handleNoticeStream(w http.ResponseWriter, r *http.Request) {
	types, err := events.ParseTypes(r.URL.Query().Get("types"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(types) == 0 {
		types = []events.EventType{events.NoticesDispatched}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Clients only listen; CloseRead handles their close frames
	ctx := conn.CloseRead(r.Context())

	ch, unsubscribe := s.container.EventBus.Subscribe(streamBuffer, types...)
	defer unsubscribe()

	s.log.Info().Int("types", len(types)).Msg("Client connected to notice stream")

	ping := time.NewTicker(streamPing)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Client disconnected from notice stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := s.writeEvent(ctx, conn, e); err != nil {
				s.log.Debug().Err(err).Msg("Notice stream write failed")
				return
			}

		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, streamWriteTTL)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("Notice stream ping failed")
				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, e events.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTTL)
	defer cancel()
	return wsjson.Write(writeCtx, conn, e)
}
