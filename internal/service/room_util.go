package service

import (
	"slices"
	"strings"
	"time"

	"werewolf-be/internal/config"
	"werewolf-be/internal/service/dto"
	"werewolf-be/internal/service/game"

	"go.uber.org/zap"
)

// RoomDefaults 是创建房间时未指定参数的默认值
type RoomDefaults struct {
	Mode      string
	SeatCount int
}

func parsePins(raw map[int]string) (map[int]game.Role, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	pins := make(map[int]game.Role, len(raw))
	for seat, name := range raw {
		role, ok := game.ParseRole(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return nil, invalidf("unknown role %q for seat %d", name, seat)
		}
		pins[seat] = role
	}

	return pins, nil
}

// ParsePinnedRoles 转换配置中的固定角色，键为房间号
func ParsePinnedRoles(raw map[string]map[int]string) (map[string]map[int]game.Role, error) {
	pins := make(map[string]map[int]game.Role, len(raw))

	for roomID, seats := range raw {
		parsed, err := parsePins(seats)
		if err != nil {
			return nil, err
		}
		pins[roomID] = parsed
	}

	return pins, nil
}

func rolesToNames(roles map[int]game.Role) map[int]string {
	names := make(map[int]string, len(roles))
	for seat, role := range roles {
		names[seat] = string(role)
	}

	return names
}

func toNightActionRequest(req dto.NightActionRequest) game.NightActionRequest {
	return game.NightActionRequest{
		PlayerSeat: req.PlayerSeat,
		Role:       game.Role(strings.ToLower(req.Role)),
		ActionType: game.ActionType(strings.ToLower(req.ActionType)),
		TargetSeat: req.TargetSeat,
	}
}

// candidatesFor 返回可选目标：给定列表中存活且不是自己的座位，列表为空时取全部存活玩家
func candidatesFor(view game.RoleView, available []int) []int {
	pool := available
	if len(pool) == 0 {
		pool = view.AlivePlayers
	}

	candidates := make([]int, 0, len(pool))
	for _, seat := range pool {
		if seat == view.Seat || !slices.Contains(view.AlivePlayers, seat) || slices.Contains(candidates, seat) {
			continue
		}
		candidates = append(candidates, seat)
	}

	slices.Sort(candidates)

	return candidates
}

// MachineOptions 把配置转换成状态机选项，未配置的项使用模式自带的规则
func MachineOptions(gc config.GameConfig, dc config.DebugConfig) ([]game.Option, error) {
	var opts []game.Option

	if gc.NightRoleTimeoutSeconds > 0 {
		opts = append(opts, game.WithNightRoleTimeout(time.Duration(gc.NightRoleTimeoutSeconds)*time.Second))
	}
	if gc.SpeakerBudgetSeconds > 0 {
		opts = append(opts, game.WithSpeakerBudget(time.Duration(gc.SpeakerBudgetSeconds)*time.Second))
	}
	if gc.AnnouncementTTLSeconds > 0 {
		opts = append(opts, game.WithAnnouncementTTL(time.Duration(gc.AnnouncementTTLSeconds)*time.Second))
	}
	if gc.MaxSpeechLength > 0 {
		opts = append(opts, game.WithMaxSpeechLength(gc.MaxSpeechLength))
	}

	raw, err := dc.PinnedRolesByRoom()
	if err != nil {
		return nil, err
	}

	if len(raw) > 0 {
		pins, err := ParsePinnedRoles(raw)
		if err != nil {
			return nil, err
		}

		zap.L().Warn("已启用固定角色配置，仅用于调试", zap.Int("rooms", len(pins)))

		opts = append(opts, game.WithPinnedRoles(pins))
	}

	return opts, nil
}
