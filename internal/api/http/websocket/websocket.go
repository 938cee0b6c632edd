package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// NOTE: 暂时允许所有来源
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	// 心跳间隔
	HEARTBEAT_INTERVAL = 30 * time.Second
	// 心跳超时时间
	HEARTBEAT_TIMEOUT = 45 * time.Second
)

// 拉取房间新消息的间隔
var pollInterval = time.Second

var heartbeatHandler = func(conn *websocket.Conn) func(string) error {
	return func(string) error {
		conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
		return nil
	}
}

// 推送给客户端的消息类型
const (
	RESP_MESSAGES      = "Messages"
	RESP_ACTION_RESULT = "ActionResult"
	RESP_ERROR         = "Error"
)

type ResponseWrapper struct {
	RespType string `json:"response_type"`
	Data     any    `json:"data"`
}

func wrapErrResponse(message string) ResponseWrapper {
	return ResponseWrapper{
		RespType: RESP_ERROR,
		Data:     message,
	}
}
