package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ayusman/handpose/internal/app"
	"github.com/ayusman/handpose/internal/server/api"
)

// maxFrameBytes bounds a single inbound WebSocket message.
const maxFrameBytes = 32 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Any origin, same as the HTTP API
	},
}

// frameResponse is a detection response tagged with the frame it answers.
type frameResponse struct {
	app.Response
	Timestamp float64 `json:"timestamp"`
}

// FrameHandler runs detection on frames sent over a WebSocket.
// Every inbound text message is an api.Frame and gets exactly one reply.
type FrameHandler struct {
	app *app.App
}

// NewFrameHandler creates a new FrameHandler around the pipeline.
func NewFrameHandler(a *app.App) *FrameHandler {
	return &FrameHandler{app: a}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *FrameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameBytes)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read error: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply := h.handleFrame(r, msg)
		if err := conn.WriteJSON(reply); err != nil {
			log.Printf("websocket write error: %v", err)
			return
		}
	}
}

func (h *FrameHandler) handleFrame(r *http.Request, msg []byte) frameResponse {
	var frame api.Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return frameResponse{Response: app.Failure(fmt.Sprintf("invalid frame: %v", err))}
	}

	data, err := frame.Bytes()
	if err != nil {
		return frameResponse{Response: app.Failure(fmt.Sprintf("invalid frame: %v", err)), Timestamp: frame.Timestamp}
	}

	resp, err := h.app.Detect(r.Context(), data)
	if err != nil {
		log.Printf("Detection unavailable: %v", err)
	}
	return frameResponse{Response: resp, Timestamp: frame.Timestamp}
}
