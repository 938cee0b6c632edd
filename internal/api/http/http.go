package http

import (
	"fmt"

	"werewolf-be/internal/api/http/websocket"
	"werewolf-be/internal/state"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"
)

// NewApp 注册所有路由，不负责监听
func NewApp(appState *state.AppState) *iris.Application {
	app := iris.Default()

	rooms := app.Party("/api/rooms")

	rooms.Get("/", ListRooms(appState))
	rooms.Post("/", CreateRoom(appState))

	room := rooms.Party("/{roomId:string}")

	room.Delete("/", RemoveRoom(appState))
	room.Get("/health", RoomHealth(appState))
	room.Get("/state", GetState(appState))
	room.Get("/messages", ListMessages(appState))
	room.Get("/seats/{seat:int}/view", GetRoleView(appState))
	room.Get("/seats/{seat:int}/memory", GetAgentMemory(appState))

	room.Post("/assign-roles", AssignRoles(appState))
	room.Post("/start-round", AdvancePhase(appState))
	room.Post("/speech", SubmitSpeech(appState))
	room.Post("/vote", SubmitVote(appState))
	room.Post("/night-action", SubmitNightAction(appState))
	room.Post("/advance-speaker", AdvanceSpeaker(appState))
	room.Post("/agent-vote", AgentVote(appState))
	room.Post("/agent-action", AgentNightAction(appState))

	room.Get("/ws", websocket.StreamRoom(appState))

	return app
}

func RunServer(appState *state.AppState) {
	app := NewApp(appState)

	addr := fmt.Sprintf(
		"%s:%d",
		appState.Cfg.Host,
		appState.Cfg.Port,
	)

	if err := app.Listen(addr); err != nil {
		zap.L().Fatal("HTTP 服务退出", zap.Error(err))
	}
}
