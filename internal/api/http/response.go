package http

import (
	"errors"

	"werewolf-be/internal/service"
	"werewolf-be/internal/service/dto"
	"werewolf-be/internal/service/game"

	"github.com/kataras/iris/v12"
)

// 响应码，0 表示成功，其余与 HTTP 状态码一致
const CODE_OK = 0

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return iris.StatusNotFound
	case errors.Is(err, game.ErrInvalidRequest):
		return iris.StatusBadRequest
	default:
		return iris.StatusInternalServerError
	}
}

func writeOK(ctx iris.Context, message string, data any) {
	ctx.JSON(envelope{
		Code:    CODE_OK,
		Message: message,
		Data:    data,
	})
}

func writeErr(ctx iris.Context, status int, message string) {
	ctx.StatusCode(status)
	ctx.JSON(envelope{
		Code:    status,
		Message: message,
	})
}

func writeError(ctx iris.Context, err error) {
	writeErr(ctx, statusFor(err), err.Error())
}

// writeResult 把写操作的结果转换成响应
func writeResult(ctx iris.Context, res dto.ActionResult) {
	if !res.Success {
		status := iris.StatusBadRequest
		if err := res.Err(); err != nil {
			status = statusFor(err)
		}

		writeErr(ctx, status, res.Message)
		return
	}

	writeOK(ctx, res.Message, res.Data)
}

// readBody 解析请求体，失败时已写入 400 响应
func readBody(ctx iris.Context, v any) bool {
	if err := ctx.ReadJSON(v); err != nil {
		writeErr(ctx, iris.StatusBadRequest, "请求参数无效")
		return false
	}

	return true
}
