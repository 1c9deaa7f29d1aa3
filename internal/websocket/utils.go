package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute

	// MaxMessageBytes bounds one client frame. Essay answers dominate.
	MaxMessageBytes = 64 << 10
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteEvent sends a Response.
func WriteEvent(conn *websocket.Conn, ev Event, ref string, data interface{}) error {
	return WriteTyped(conn, Response{Event: ev, Ref: ref, Data: data})
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, ref, code, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Ref:   ref,
		Code:  code,
		Error: errMsg,
	})
}

// ReadMessage reads one frame with the read deadline applied.
func ReadMessage(conn *websocket.Conn) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := conn.ReadMessage()
	return data, err
}
