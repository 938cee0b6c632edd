package game

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

var roleNames = map[Role]string{
	ROLE_WEREWOLF: "狼人",
	ROLE_VILLAGER: "村民",
	ROLE_SEER:     "预言家",
	ROLE_WITCH:    "女巫",
	ROLE_HUNTER:   "猎人",
}

// 夜晚行动阶段处理器
// 夜晚内部按 NightRoleOrder 逐个角色行动，每个角色有独立的超时窗口
type nightStageHandler struct {
	baseStageHandler
}

func NewNightStageHandler(rules *Rules) *nightStageHandler {
	return &nightStageHandler{baseStageHandler{rules: rules}}
}

func (nsh *nightStageHandler) Stage() Phase {
	return PHASE_NIGHT_ACTION
}

func (nsh *nightStageHandler) OnEnter(ctx *GameContext) {
	// 先执行白天的放逐
	if ctx.VotingResult != nil && ctx.VotingResult.VotedOut != NO_SEAT {
		ctx.kill(ctx.VotingResult.VotedOut, CAUSE_VOTE)

		if ctx.checkGameOver() {
			nsh.onSwitch(PHASE_GAME_OVER)
			return
		}
	}

	ctx.resetNightState()
	ctx.skippedRole = ""

	nsh.advanceNightRole(ctx)
}

func (nsh *nightStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) (any, error) {
	r := TryUnwrapNightActionRequest(req)
	if r == nil {
		return nil, rejectInPhase(ctx, req)
	}

	if err := nsh.validate(ctx, r); err != nil {
		zap.L().Debug(
			"夜晚行动被拒绝",
			zap.String("room_id", ctx.RoomID),
			zap.Int("seat", r.PlayerSeat),
			zap.String("role", string(r.Role)),
			zap.Error(err),
		)
		return nil, err
	}

	switch r.Role {
	case ROLE_WEREWOLF:
		return nsh.handleWerewolf(ctx, r), nil
	case ROLE_WITCH:
		return nsh.handleWitch(ctx, r)
	case ROLE_SEER:
		return nsh.handleSeer(ctx, r), nil
	}

	return nil, invalidf("role %s has no night action", r.Role)
}

func (nsh *nightStageHandler) validate(ctx *GameContext, r *NightActionRequest) error {
	p, ok := ctx.Players[r.PlayerSeat]
	if !ok {
		return invalidf("seat %d does not exist", r.PlayerSeat)
	}
	if !p.Alive {
		return invalidf("player %d is not alive", r.PlayerSeat)
	}
	if p.Role != r.Role {
		return invalidf("Role mismatch")
	}
	if !r.Role.HasNightAction() {
		return invalidf("role %s has no night action", r.Role)
	}

	if r.Role != ctx.NightCurrentRole {
		if r.Role == ctx.skippedRole {
			return invalidf("role %s timed out, action not accepted", r.Role)
		}
		return invalidf("Not your turn. Current: %s, Your: %s", ctx.NightCurrentRole, r.Role)
	}

	if !r.Role.Allows(r.ActionType) {
		return invalidf("Invalid action type %s for role %s", r.ActionType, r.Role)
	}

	if r.TargetSeat != NO_SEAT && !ctx.isAlive(r.TargetSeat) {
		return invalidf("target %d is not a living player", r.TargetSeat)
	}

	return nil
}

// 每只狼人独立提交，全部存活狼人提交后才统计结果
func (nsh *nightStageHandler) handleWerewolf(ctx *GameContext, r *NightActionRequest) NightActionResponse {
	ctx.WerewolfChoices[r.PlayerSeat] = r.TargetSeat

	wolves := ctx.GetAliveByRole(ROLE_WEREWOLF)

	choices := make(map[int]int, len(wolves))
	for _, seat := range wolves {
		if target, ok := ctx.WerewolfChoices[seat]; ok {
			choices[seat] = target
		}
	}

	if len(choices) < len(wolves) {
		zap.L().Debug(
			"等待其余狼人选择",
			zap.String("room_id", ctx.RoomID),
			zap.Int("chosen", len(choices)),
			zap.Int("wolves", len(wolves)),
		)

		return NightActionResponse{
			Action:     ACTION_KILL,
			TargetSeat: r.TargetSeat,
			Pending:    true,
		}
	}

	killed, counts := ctx.tally(choices)
	ctx.WerewolfKilled = killed

	zap.L().Info(
		"狼人选择完毕",
		zap.String("room_id", ctx.RoomID),
		zap.Int("target", killed),
		zap.Any("counts", counts),
	)

	// 击杀结果只对狼人可见，随后会被下一个角色的提示覆盖
	if killed != NO_SEAT {
		ctx.setAnnouncement(fmt.Sprintf("狼人选择击杀 %d 号玩家", killed), ROLE_WEREWOLF)
	} else {
		ctx.setAnnouncement("狼人今晚没有选择目标", ROLE_WEREWOLF)
	}
	announcement := ctx.announcement(nsh.rules.AnnouncementTTL)

	nsh.completeRole(ctx, ROLE_WEREWOLF)

	return NightActionResponse{
		Action:       ACTION_KILL,
		TargetSeat:   killed,
		Announcement: announcement,
	}
}

// 女巫每晚只能提交一次；不带目标的提交视为放弃，不消耗药水
func (nsh *nightStageHandler) handleWitch(ctx *GameContext, r *NightActionRequest) (any, error) {
	wc := ctx.WitchContext

	if r.TargetSeat != NO_SEAT {
		switch r.ActionType {
		case ACTION_SAVE:
			if !wc.HasSavePotion {
				return nil, invalidf("Witch already used save")
			}
			if r.TargetSeat != ctx.WerewolfKilled {
				return nil, invalidf("seat %d was not attacked tonight", r.TargetSeat)
			}

			wc.HasSavePotion = false
			wc.SavedHistory = append(wc.SavedHistory, r.TargetSeat)
			ctx.WitchSaved = r.TargetSeat
		case ACTION_POISON:
			if !wc.HasPoisonPotion {
				return nil, invalidf("Witch already used poison")
			}

			wc.HasPoisonPotion = false
			wc.PoisonedHistory = append(wc.PoisonedHistory, r.TargetSeat)
			ctx.WitchPoisoned = r.TargetSeat
		}
	}

	zap.L().Info(
		"女巫行动",
		zap.String("room_id", ctx.RoomID),
		zap.String("action", string(r.ActionType)),
		zap.Int("target", r.TargetSeat),
	)

	nsh.completeRole(ctx, ROLE_WITCH)

	return NightActionResponse{
		Action:       r.ActionType,
		TargetSeat:   r.TargetSeat,
		Announcement: ctx.announcement(nsh.rules.AnnouncementTTL),
	}, nil
}

// 查验结果只记入预言家的历史，不通过响应返回
func (nsh *nightStageHandler) handleSeer(ctx *GameContext, r *NightActionRequest) NightActionResponse {
	if r.TargetSeat != NO_SEAT {
		ctx.SeerChecked = r.TargetSeat
		ctx.SeerContext = append(ctx.SeerContext, SeerCheck{
			Round:  ctx.Round,
			Seat:   r.TargetSeat,
			Result: ctx.Players[r.TargetSeat].Role,
		})
	}

	nsh.completeRole(ctx, ROLE_SEER)

	return NightActionResponse{
		Action:       ACTION_CHECK,
		TargetSeat:   r.TargetSeat,
		Announcement: ctx.announcement(nsh.rules.AnnouncementTTL),
	}
}

func (nsh *nightStageHandler) completeRole(ctx *GameContext, role Role) {
	if !slices.Contains(ctx.NightActionsCompleted, role) {
		ctx.NightActionsCompleted = append(ctx.NightActionsCompleted, role)
	}

	nsh.advanceNightRole(ctx)
}

// advanceNightRole 把指针移到下一个未完成的角色，没有存活持有者的角色直接跳过
func (nsh *nightStageHandler) advanceNightRole(ctx *GameContext) {
	for _, role := range NightRoleOrder {
		if slices.Contains(ctx.NightActionsCompleted, role) {
			continue
		}

		if len(ctx.GetAliveByRole(role)) == 0 {
			ctx.NightActionsCompleted = append(ctx.NightActionsCompleted, role)
			continue
		}

		ctx.NightCurrentRole = role
		ctx.NightRoleStartTimes[role] = ctx.now()
		ctx.setAnnouncement(fmt.Sprintf("%s请睁眼，请选择行动目标", roleNames[role]), role)

		zap.L().Debug(
			"夜晚角色开始行动",
			zap.String("room_id", ctx.RoomID),
			zap.String("role", string(role)),
		)

		return
	}

	nsh.finishNight(ctx)
}

func (nsh *nightStageHandler) finishNight(ctx *GameContext) {
	ctx.NightCurrentRole = ""

	resolveDawn(ctx)

	if ctx.checkGameOver() {
		nsh.onSwitch(PHASE_GAME_OVER)
		return
	}

	ctx.Round++
	nsh.onSwitch(PHASE_DAY_DISCUSSION)
}

func (nsh *nightStageHandler) OnTick(ctx *GameContext) {
	role := ctx.NightCurrentRole
	if role == "" {
		return
	}

	started, ok := ctx.NightRoleStartTimes[role]
	if !ok || ctx.now().Sub(started) < nsh.rules.NightRoleTimeout {
		return
	}

	zap.L().Info(
		"夜晚角色超时，自动跳过",
		zap.String("room_id", ctx.RoomID),
		zap.String("role", string(role)),
	)

	// 超时不记录任何目标
	if role == ROLE_WEREWOLF {
		clear(ctx.WerewolfChoices)
	}

	ctx.skippedRole = role
	nsh.completeRole(ctx, role)
}

// 显式推进时，剩余角色全部视为放弃，直接天亮
func (nsh *nightStageHandler) OnAdvance(ctx *GameContext) error {
	for _, role := range NightRoleOrder {
		if !slices.Contains(ctx.NightActionsCompleted, role) {
			ctx.NightActionsCompleted = append(ctx.NightActionsCompleted, role)
		}
	}

	nsh.finishNight(ctx)

	return nil
}

// resolveDawn 结算夜晚死亡：女巫救下的人存活，毒杀的人与刀杀不同时额外死亡
func resolveDawn(ctx *GameContext) {
	deaths := make([]int, 0, 2)

	killed := ctx.WerewolfKilled
	if killed != NO_SEAT && ctx.WitchSaved != killed {
		if ctx.kill(killed, CAUSE_WEREWOLF) {
			deaths = append(deaths, killed)
		}
	}

	if poisoned := ctx.WitchPoisoned; poisoned != NO_SEAT && poisoned != killed {
		if ctx.kill(poisoned, CAUSE_WITCH) {
			deaths = append(deaths, poisoned)
		}
	}

	if len(deaths) == 0 {
		ctx.setAnnouncement("天亮了，昨晚是平安夜", "")
	} else {
		ctx.setAnnouncement(fmt.Sprintf("天亮了，昨晚死亡的玩家：%v", deaths), "")
	}

	ctx.resetNightState()
}
