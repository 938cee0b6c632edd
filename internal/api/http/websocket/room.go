package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"werewolf-be/internal/service"
	"werewolf-be/internal/service/game"
	"werewolf-be/internal/state"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	"go.uber.org/zap"
)

// StreamRoom 推送房间的新消息，同时接受客户端提交的请求
// 连接建立时先补发 after 之后的全部消息
func StreamRoom(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		roomID := ctx.Params().Get("roomId")
		after := ctx.URLParamInt64Default("after", 0)

		if _, err := appState.RoomSvc.Get(roomID); err != nil {
			ctx.StatusCode(iris.StatusNotFound)
			ctx.JSON(iris.Map{
				"code":    iris.StatusNotFound,
				"message": err.Error(),
			})
			return
		}

		conn, err := upgrader.Upgrade(
			ctx.ResponseWriter(),
			ctx.Request(),
			nil,
		)
		if err != nil {
			zap.L().Error("升级到WebSocket失败", zap.Error(err))
			ctx.StatusCode(iris.StatusBadRequest)
			return
		}

		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))
		conn.SetPongHandler(heartbeatHandler(conn))

		clientIP := ctx.RemoteAddr()

		zap.L().Info(
			"客户端订阅房间消息",
			zap.String("client_ip", clientIP),
			zap.String("room_id", roomID),
			zap.Int64("after", after),
		)

		respCh := make(chan ResponseWrapper, 64)

		// 写协程的退出信号
		writeDoneCh := make(chan struct{})
		defer close(writeDoneCh)

		// 写入协程，连接上的所有写操作都在这里完成
		go func() {
			// 写协程退出后关闭连接，让读循环也退出
			defer conn.Close()

			heartbeat := time.NewTicker(HEARTBEAT_INTERVAL)
			defer heartbeat.Stop()

			poll := time.NewTicker(pollInterval)
			defer poll.Stop()

			write := func(resp ResponseWrapper) bool {
				conn.SetWriteDeadline(time.Now().Add(HEARTBEAT_TIMEOUT))

				if err := conn.WriteJSON(resp); err != nil {
					zap.L().Error(
						"发送消息失败",
						zap.String("client_ip", clientIP),
						zap.Error(err),
					)
					return false
				}

				return true
			}

			// 拉取新消息并推送，房间被删除时返回 false
			push := func() bool {
				msgs, err := appState.RoomSvc.ListMessages(roomID, after)
				if err != nil {
					if errors.Is(err, service.ErrRoomNotFound) {
						write(wrapErrResponse("房间已关闭"))
					}
					return false
				}

				if len(msgs) == 0 {
					return true
				}

				after = msgs[len(msgs)-1].ID

				return write(ResponseWrapper{
					RespType: RESP_MESSAGES,
					Data:     msgs,
				})
			}

			if !push() {
				return
			}

			for {
				select {
				case <-writeDoneCh:
					zap.L().Info(
						"WebSocket写入协程退出",
						zap.String("client_ip", clientIP),
					)
					return

				case <-heartbeat.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(HEARTBEAT_TIMEOUT)); err != nil {
						zap.L().Error(
							"发送心跳失败",
							zap.String("client_ip", clientIP),
							zap.Error(err),
						)
						return
					}

					zap.L().Debug(
						"发送心跳",
						zap.String("client_ip", clientIP),
					)

				case <-poll.C:
					if !push() {
						return
					}

				case resp := <-respCh:
					if !write(resp) {
						return
					}
				}
			}
		}()

		// 读取循环（主协程）
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(
					err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure,
				) {
					zap.L().Debug(
						"读取消息失败",
						zap.String("client_ip", clientIP),
						zap.Error(err),
					)
				}

				break
			}

			var wrapper game.RequestWrapper

			if err := json.Unmarshal(msg, &wrapper); err != nil {
				zap.L().Warn(
					"解析消息失败",
					zap.String("client_ip", clientIP),
					zap.Error(err),
				)

				send(respCh, wrapErrResponse("无效的请求格式"), clientIP)

				continue
			}

			res := appState.RoomSvc.Dispatch(roomID, wrapper)

			send(respCh, ResponseWrapper{
				RespType: RESP_ACTION_RESULT,
				Data:     res,
			}, clientIP)
		}

		zap.L().Info(
			"WebSocket连接处理完成",
			zap.String("client_ip", clientIP),
			zap.String("room_id", roomID),
		)
	}
}

func send(respCh chan<- ResponseWrapper, resp ResponseWrapper, clientIP string) {
	select {
	case respCh <- resp:
	default:
		zap.L().Warn(
			"响应通道已满，丢弃响应",
			zap.String("client_ip", clientIP),
		)
	}
}
