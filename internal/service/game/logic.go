package game

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// 游戏总体分为 6 个阶段，分别是：
// 1. 等待阶段（waiting）：房间已创建，尚未分配角色
// 2. 角色分配阶段（role_assigned）：角色已分配，初始化各角色视角
// 3. 白天讨论阶段（day_discussion）：存活玩家按座位顺序轮流发言
// 4. 白天投票阶段（day_voting）：存活玩家投票放逐一名玩家
// 5. 夜晚行动阶段（night_action）：狼人 -> 女巫 -> 预言家依次行动
// 6. 结束阶段（game_over）：一方阵营获胜，终态
type Phase string

const (
	PHASE_WAITING        Phase = "waiting"
	PHASE_ROLE_ASSIGNED  Phase = "role_assigned"
	PHASE_DAY_DISCUSSION Phase = "day_discussion"
	PHASE_DAY_VOTING     Phase = "day_voting"
	PHASE_NIGHT_ACTION   Phase = "night_action"
	PHASE_GAME_OVER      Phase = "game_over"
)

// 阶段转换表，night_action 在胜负判定触发时改走 game_over
var nextPhases = map[Phase]Phase{
	PHASE_WAITING:        PHASE_ROLE_ASSIGNED,
	PHASE_ROLE_ASSIGNED:  PHASE_DAY_DISCUSSION,
	PHASE_DAY_DISCUSSION: PHASE_DAY_VOTING,
	PHASE_DAY_VOTING:     PHASE_NIGHT_ACTION,
	PHASE_NIGHT_ACTION:   PHASE_DAY_DISCUSSION,
}

var phaseAnnouncements = map[Phase]string{
	PHASE_WAITING:        "游戏准备阶段，等待玩家加入",
	PHASE_ROLE_ASSIGNED:  "角色分配完成，请查看你的角色信息",
	PHASE_DAY_DISCUSSION: "白天讨论阶段开始，请大家轮流发言",
	PHASE_DAY_VOTING:     "白天投票阶段开始，请投票选出要放逐的玩家",
	PHASE_NIGHT_ACTION:   "天黑请闭眼，狼人请睁眼选择目标",
	PHASE_GAME_OVER:      "游戏结束，感谢大家的参与",
}

type StageHandler interface {
	Stage() Phase

	OnEnter(ctx *GameContext)
	OnHandle(ctx *GameContext, req RequestWrapper) (any, error)
	// OnTick 在每次读写房间前调用，用于惰性地处理超时
	OnTick(ctx *GameContext)
	// OnAdvance 处理显式的推进阶段请求
	OnAdvance(ctx *GameContext) error
	OnExit(ctx *GameContext)

	SetOnSwitch(func(nextPhase Phase))
}

// baseStageHandler 提供默认行为，具体阶段按需覆盖
type baseStageHandler struct {
	rules    *Rules
	onSwitch func(Phase)
}

func (bsh *baseStageHandler) OnEnter(ctx *GameContext) {}

func (bsh *baseStageHandler) OnTick(ctx *GameContext) {}

func (bsh *baseStageHandler) OnExit(ctx *GameContext) {}

func (bsh *baseStageHandler) SetOnSwitch(onSwitch func(Phase)) {
	bsh.onSwitch = onSwitch
}

func (bsh *baseStageHandler) expired(ctx *GameContext) bool {
	if ctx.PhaseDuration <= 0 {
		return false
	}

	return ctx.now().Sub(ctx.PhaseStartTime) >= ctx.PhaseDuration
}

func rejectInPhase(ctx *GameContext, req RequestWrapper) error {
	return invalidf("action %s is not allowed in phase %s", req.ReqType, ctx.Phase)
}

// 等待阶段是整个游戏最初始的阶段
type waitStageHandler struct {
	baseStageHandler
}

func NewWaitStageHandler(rules *Rules) *waitStageHandler {
	return &waitStageHandler{baseStageHandler{rules: rules}}
}

func (wsh *waitStageHandler) Stage() Phase {
	return PHASE_WAITING
}

func (wsh *waitStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) (any, error) {
	return nil, rejectInPhase(ctx, req)
}

// 在等待阶段直接推进时，按配置的固定角色随机分配
func (wsh *waitStageHandler) OnAdvance(ctx *GameContext) error {
	if err := assignRoles(ctx, wsh.rules.pinsFor(ctx.RoomID)); err != nil {
		return err
	}

	ctx.Round = 1
	wsh.onSwitch(PHASE_ROLE_ASSIGNED)

	return nil
}

// 角色分配阶段处理器
type assignedStageHandler struct {
	baseStageHandler
}

func NewAssignedStageHandler(rules *Rules) *assignedStageHandler {
	return &assignedStageHandler{baseStageHandler{rules: rules}}
}

func (ash *assignedStageHandler) Stage() Phase {
	return PHASE_ROLE_ASSIGNED
}

func (ash *assignedStageHandler) OnEnter(ctx *GameContext) {
	initRoleContexts(ctx)

	zap.L().Info(
		"角色上下文初始化完成",
		zap.String("room_id", ctx.RoomID),
		zap.Ints("werewolves", ctx.WerewolfContext.Teammates),
	)
}

func (ash *assignedStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) (any, error) {
	return nil, rejectInPhase(ctx, req)
}

func (ash *assignedStageHandler) OnAdvance(ctx *GameContext) error {
	ash.onSwitch(PHASE_DAY_DISCUSSION)
	return nil
}

// 白天讨论阶段处理器
type discussStageHandler struct {
	baseStageHandler
}

func NewDiscussStageHandler(rules *Rules) *discussStageHandler {
	return &discussStageHandler{baseStageHandler{rules: rules}}
}

func (dsh *discussStageHandler) Stage() Phase {
	return PHASE_DAY_DISCUSSION
}

func (dsh *discussStageHandler) OnEnter(ctx *GameContext) {
	// 发言顺序为进入阶段时的存活玩家，按座位号升序
	ctx.SpeakingOrder = ctx.GetAlivePlayers()
	ctx.CurrentSpeakerIndex = 0
	ctx.SpeakingStartTime = ctx.now()
}

func (dsh *discussStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) (any, error) {
	if r := TryUnwrapAdvanceSpeakerRequest(req); r != nil {
		if len(ctx.SpeakingOrder) == 0 {
			return nil, invalidf("no speaking order available")
		}

		next := ctx.CurrentSpeakerIndex + 1
		if next >= len(ctx.SpeakingOrder) {
			// 所有人都发言完毕，进入投票阶段
			dsh.onSwitch(PHASE_DAY_VOTING)

			return AdvanceSpeakerResponse{
				CurrentSpeaker: NO_SEAT,
				Phase:          PHASE_DAY_VOTING,
			}, nil
		}

		ctx.CurrentSpeakerIndex = next
		ctx.SpeakingStartTime = ctx.now()

		return AdvanceSpeakerResponse{
			CurrentSpeaker: ctx.SpeakingOrder[next],
			Phase:          PHASE_DAY_DISCUSSION,
		}, nil
	}

	return nil, rejectInPhase(ctx, req)
}

func (dsh *discussStageHandler) OnTick(ctx *GameContext) {
	if dsh.expired(ctx) {
		zap.L().Debug("讨论阶段超时，进入投票", zap.String("room_id", ctx.RoomID))
		dsh.onSwitch(PHASE_DAY_VOTING)
	}
}

func (dsh *discussStageHandler) OnAdvance(ctx *GameContext) error {
	dsh.onSwitch(PHASE_DAY_VOTING)
	return nil
}

// 白天投票阶段处理器
type voteStageHandler struct {
	baseStageHandler
}

func NewVoteStageHandler(rules *Rules) *voteStageHandler {
	return &voteStageHandler{baseStageHandler{rules: rules}}
}

func (vsh *voteStageHandler) Stage() Phase {
	return PHASE_DAY_VOTING
}

func (vsh *voteStageHandler) OnEnter(ctx *GameContext) {
	for _, p := range ctx.Players {
		p.HasVoted = false
		p.VotedFor = NO_SEAT
	}

	ctx.VotingStartTime = ctx.now()
	ctx.VotingVotedCount = 0
	ctx.VotingResult = nil
}

func (vsh *voteStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) (any, error) {
	r := TryUnwrapVoteRequest(req)
	if r == nil {
		return nil, rejectInPhase(ctx, req)
	}

	voter, ok := ctx.Players[r.VoterSeat]
	if !ok {
		return nil, invalidf("voter seat %d does not exist", r.VoterSeat)
	}
	target, ok := ctx.Players[r.TargetSeat]
	if !ok {
		return nil, invalidf("target seat %d does not exist", r.TargetSeat)
	}
	if !voter.Alive || !target.Alive {
		return nil, invalidf("player is not alive")
	}

	// 改票不重复计数
	if !voter.HasVoted {
		ctx.VotingVotedCount++
	}

	voter.VotedFor = r.TargetSeat
	voter.HasVoted = true

	zap.L().Debug(
		"玩家投票",
		zap.String("room_id", ctx.RoomID),
		zap.Int("voter", r.VoterSeat),
		zap.Int("target", r.TargetSeat),
		zap.Int("voted_count", ctx.VotingVotedCount),
	)

	if ctx.VotingVotedCount >= len(ctx.GetAlivePlayers()) {
		calculateVotingResult(ctx)
		vsh.onSwitch(PHASE_NIGHT_ACTION)
	}

	return VoteResponse{
		VoterSeat:  r.VoterSeat,
		TargetSeat: r.TargetSeat,
	}, nil
}

func (vsh *voteStageHandler) OnTick(ctx *GameContext) {
	if vsh.expired(ctx) {
		zap.L().Debug("投票阶段超时，按已投票数结算", zap.String("room_id", ctx.RoomID))
		vsh.onSwitch(PHASE_NIGHT_ACTION)
	}
}

func (vsh *voteStageHandler) OnAdvance(ctx *GameContext) error {
	vsh.onSwitch(PHASE_NIGHT_ACTION)
	return nil
}

// 提前离开投票阶段时，按已投出的票结算
func (vsh *voteStageHandler) OnExit(ctx *GameContext) {
	if ctx.VotingResult == nil {
		calculateVotingResult(ctx)
	}
}

func calculateVotingResult(ctx *GameContext) {
	choices := make(map[int]int)
	details := make([]VoteDetail, 0)

	for _, seat := range ctx.Seats() {
		p := ctx.Players[seat]
		if p.Alive && p.HasVoted && p.VotedFor != NO_SEAT {
			choices[seat] = p.VotedFor
			details = append(details, VoteDetail{Voter: seat, Target: p.VotedFor})
		}
	}

	votedOut, counts := ctx.tally(choices)

	ctx.VotingResult = &VotingResult{
		VotedOut:    votedOut,
		VoteCounts:  counts,
		VoteDetails: details,
	}

	ctx.addMessage(MSG_VOTE_RESULT, map[string]any{
		"voted_out":    votedOut,
		"vote_counts":  counts,
		"vote_details": details,
		"round":        ctx.Round,
	})

	lines := []string{"投票结果："}
	for _, d := range details {
		lines = append(lines, fmt.Sprintf("  %d号 -> %d号", d.Voter, d.Target))
	}
	if votedOut != NO_SEAT {
		lines = append(lines, fmt.Sprintf("%d号玩家被投票出局（%d票）", votedOut, counts[votedOut]))
	} else {
		lines = append(lines, "无人被投票出局")
	}
	ctx.setAnnouncement(strings.Join(lines, "\n"), "")

	zap.L().Info(
		"投票结算完成",
		zap.String("room_id", ctx.RoomID),
		zap.Int("voted_out", votedOut),
		zap.Any("vote_counts", counts),
	)
}

// 结束阶段处理器
type finishStageHandler struct {
	baseStageHandler
}

func NewFinishStageHandler(rules *Rules) *finishStageHandler {
	return &finishStageHandler{baseStageHandler{rules: rules}}
}

func (fsh *finishStageHandler) Stage() Phase {
	return PHASE_GAME_OVER
}

func (fsh *finishStageHandler) OnEnter(ctx *GameContext) {
	ctx.NightCurrentRole = ""
}

func (fsh *finishStageHandler) OnHandle(ctx *GameContext, req RequestWrapper) (any, error) {
	return nil, invalidf("game is over")
}

func (fsh *finishStageHandler) OnAdvance(ctx *GameContext) error {
	return invalidf("game is over")
}

// handleSpeech 在任何阶段都可以调用，只校验长度
func handleSpeech(ctx *GameContext, rules *Rules, r *SpeechRequest) (any, error) {
	if _, ok := ctx.Players[r.Seat]; !ok {
		return nil, invalidf("seat %d does not exist", r.Seat)
	}

	text := strings.TrimSpace(r.Text)
	if text == "" || utf8.RuneCountInString(text) > rules.MaxSpeechLength {
		return nil, invalidf("invalid speech text")
	}

	ctx.Speeches = append(ctx.Speeches, Speech{
		Seat:      r.Seat,
		Text:      text,
		Round:     ctx.Round,
		Timestamp: ctx.now().UnixMilli(),
	})

	// 只保留最近的发言，供决策系统参考
	if over := len(ctx.Speeches) - maxSpeechHistory; over > 0 {
		ctx.Speeches = slices.Delete(ctx.Speeches, 0, over)
	}

	return SpeechResponse{Seat: r.Seat, Text: text}, nil
}

const maxSpeechHistory = 50

func newStageHandler(phase Phase, rules *Rules) StageHandler {
	switch phase {
	case PHASE_WAITING:
		return NewWaitStageHandler(rules)
	case PHASE_ROLE_ASSIGNED:
		return NewAssignedStageHandler(rules)
	case PHASE_DAY_DISCUSSION:
		return NewDiscussStageHandler(rules)
	case PHASE_DAY_VOTING:
		return NewVoteStageHandler(rules)
	case PHASE_NIGHT_ACTION:
		return NewNightStageHandler(rules)
	case PHASE_GAME_OVER:
		return NewFinishStageHandler(rules)
	}

	return nil
}

// rolesBySeat 返回座位到角色的映射
func rolesBySeat(ctx *GameContext) map[int]Role {
	roles := make(map[int]Role, ctx.SeatCount())
	for seat, p := range ctx.Players {
		roles[seat] = p.Role
	}

	return roles
}
