package main

import (
	"context"

	"werewolf-be/internal/api/http"
	"werewolf-be/internal/config"
	"werewolf-be/internal/logger"
	"werewolf-be/internal/service"
	"werewolf-be/internal/service/agent"
	"werewolf-be/internal/state"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg := config.InitConfig()

	// 初始化日志器
	logger.InitLogger(cfg.LogLevel)

	// 决策系统，未配置大模型时使用规则决策
	agents, err := agent.NewPipelineFromConfig(context.Background(), cfg.Agent)
	if err != nil {
		zap.L().Fatal("初始化决策系统失败", zap.Error(err))
	}

	machineOpts, err := service.MachineOptions(cfg.Game, cfg.Debug)
	if err != nil {
		zap.L().Fatal("解析游戏配置失败", zap.Error(err))
	}

	// 组装应用状态
	appState := state.NewAppState(
		cfg,
		agents,
		service.NewRoomService(
			service.RoomDefaults{
				Mode:      cfg.Game.DefaultMode,
				SeatCount: cfg.Game.DefaultSeatCount,
			},
			agents,
			machineOpts...,
		),
	)

	// 启动服务器
	http.RunServer(appState)
}
