package http

import (
	"werewolf-be/internal/service/dto"
	"werewolf-be/internal/state"

	"github.com/kataras/iris/v12"
)

func roomID(ctx iris.Context) string {
	return ctx.Params().Get("roomId")
}

func ListRooms(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		ids := appState.RoomSvc.RoomIDs()

		rooms := make([]dto.RoomHealthResponse, 0, len(ids))
		for _, id := range ids {
			rooms = append(rooms, appState.RoomSvc.Health(id))
		}

		writeOK(ctx, "ok", rooms)
	}
}

func CreateRoom(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.CreateRoomRequest

		// 请求体可以为空，全部使用默认值
		if ctx.GetContentLength() > 0 && !readBody(ctx, &req) {
			return
		}

		resp, err := appState.RoomSvc.CreateRoom(req)
		if err != nil {
			writeError(ctx, err)
			return
		}

		writeOK(ctx, "房间已创建", resp)
	}
}

func RemoveRoom(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		if err := appState.RoomSvc.Remove(roomID(ctx)); err != nil {
			writeError(ctx, err)
			return
		}

		writeOK(ctx, "房间已删除", nil)
	}
}

func RoomHealth(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		writeOK(ctx, "ok", appState.RoomSvc.Health(roomID(ctx)))
	}
}

func GetState(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		view, err := appState.RoomSvc.GetState(roomID(ctx))
		if err != nil {
			writeError(ctx, err)
			return
		}

		writeOK(ctx, "ok", view)
	}
}

func GetRoleView(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		seat, err := ctx.Params().GetInt("seat")
		if err != nil {
			writeErr(ctx, iris.StatusBadRequest, "座位号无效")
			return
		}

		view, err := appState.RoomSvc.RoleView(roomID(ctx), seat)
		if err != nil {
			writeError(ctx, err)
			return
		}

		writeOK(ctx, "ok", view)
	}
}

// GetAgentMemory 返回电脑座位最近的决策理由，用于调试
func GetAgentMemory(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		seat, err := ctx.Params().GetInt("seat")
		if err != nil {
			writeErr(ctx, iris.StatusBadRequest, "座位号无效")
			return
		}

		if _, err := appState.RoomSvc.Get(roomID(ctx)); err != nil {
			writeError(ctx, err)
			return
		}

		writeOK(ctx, "ok", appState.Agents.Memory(roomID(ctx), seat))
	}
}

func ListMessages(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		after := ctx.URLParamInt64Default("after", 0)

		msgs, err := appState.RoomSvc.ListMessages(roomID(ctx), after)
		if err != nil {
			writeError(ctx, err)
			return
		}

		writeOK(ctx, "ok", msgs)
	}
}

func AssignRoles(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.AssignRolesRequest

		if ctx.GetContentLength() > 0 && !readBody(ctx, &req) {
			return
		}

		writeResult(ctx, appState.RoomSvc.AssignRoles(roomID(ctx), req))
	}
}

func AdvancePhase(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		writeResult(ctx, appState.RoomSvc.AdvancePhase(roomID(ctx)))
	}
}

func SubmitSpeech(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.SpeechRequest
		if !readBody(ctx, &req) {
			return
		}

		writeResult(ctx, appState.RoomSvc.SubmitSpeech(roomID(ctx), req))
	}
}

func SubmitVote(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.VoteRequest
		if !readBody(ctx, &req) {
			return
		}

		writeResult(ctx, appState.RoomSvc.SubmitVote(roomID(ctx), req))
	}
}

func SubmitNightAction(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.NightActionRequest
		if !readBody(ctx, &req) {
			return
		}

		writeResult(ctx, appState.RoomSvc.SubmitNightAction(roomID(ctx), req))
	}
}

func AdvanceSpeaker(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		writeResult(ctx, appState.RoomSvc.AdvanceSpeaker(roomID(ctx)))
	}
}

func AgentVote(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.AgentVoteRequest
		if !readBody(ctx, &req) {
			return
		}

		writeResult(ctx, appState.RoomSvc.AgentVote(ctx.Request().Context(), roomID(ctx), req))
	}
}

func AgentNightAction(appState *state.AppState) iris.Handler {
	return func(ctx iris.Context) {
		var req dto.AgentActionRequest
		if !readBody(ctx, &req) {
			return
		}

		writeResult(ctx, appState.RoomSvc.AgentNightAction(ctx.Request().Context(), roomID(ctx), req))
	}
}
