package state

import (
	"werewolf-be/internal/config"
	"werewolf-be/internal/service"
	"werewolf-be/internal/service/agent"
)

// AppState 持有进程内唯一的房间注册表和决策系统，由 main 组装后传给各个 handler
type AppState struct {
	Cfg     *config.AppConfig
	RoomSvc *service.RoomService
	Agents  *agent.Pipeline
}

func NewAppState(
	cfg *config.AppConfig,
	agents *agent.Pipeline,
	roomSvc *service.RoomService,
) *AppState {
	return &AppState{
		Cfg:     cfg,
		RoomSvc: roomSvc,
		Agents:  agents,
	}
}
