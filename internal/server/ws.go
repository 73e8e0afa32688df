package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"cipher-scan/internal/scan"
)

const wsWriteTimeout = 10 * time.Second

// StreamReply is one websocket response frame. Status mirrors the HTTP
// status the same request would get on /predict or /predict-file.
type StreamReply struct {
	*scan.Result
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// handleWebSocket serves one prediction per incoming frame. Text frames carry
// a JSON PredictRequest; binary frames are classified as file content.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	idle := s.opts.StreamIdleTimeout
	conn.SetReadLimit(int64(s.svc.Options().MaxInputBytes)*6 + 1024)
	conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.keepalive(conn, stop)

	log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(idle))

		reply := s.streamPredict(r.Context(), msgType, data)

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Msg("websocket write failed")
			break
		}
	}

	log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client disconnected")
}

// keepalive pings the client until stop closes. Each pong extends the read
// deadline, so a quiet client that still answers pings stays connected.
func (s *Server) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.StreamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// WriteControl may run concurrently with the reply writer.
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				log.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		}
	}
}

func (s *Server) streamPredict(parent context.Context, msgType int, data []byte) StreamReply {
	ctx, cancel := context.WithTimeout(parent, s.opts.RequestTimeout)
	defer cancel()

	var (
		res  scan.Result
		err  error
		text = textErrors
	)
	switch msgType {
	case websocket.TextMessage:
		var req PredictRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return StreamReply{Status: http.StatusBadRequest, Detail: fmt.Sprintf("invalid request: %v", err)}
		}
		if req.Text == nil {
			return StreamReply{Status: http.StatusBadRequest, Detail: textErrors.empty}
		}
		res, err = s.svc.PredictText(ctx, *req.Text)
	case websocket.BinaryMessage:
		text = fileErrors
		res, err = s.svc.PredictBytes(ctx, "", data)
	default:
		return StreamReply{Status: http.StatusBadRequest, Detail: "unsupported frame type"}
	}

	if err != nil {
		status, detail := s.errorStatus(err, text)
		return StreamReply{Status: status, Detail: detail}
	}
	return StreamReply{Result: &res, Status: http.StatusOK}
}
