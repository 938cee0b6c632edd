package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"werewolf-be/internal/service/agent"
	"werewolf-be/internal/service/dto"
	"werewolf-be/internal/service/game"

	"go.uber.org/zap"
)

var ErrRoomNotFound = errors.New("room not found")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", game.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// RoomService 是房间注册表，同时对外提供房间内的所有操作
// 每个房间的状态机自带锁，注册表的锁只保护房间映射本身
type RoomService struct {
	state *roomServiceState

	agents      *agent.Pipeline
	defaults    RoomDefaults
	machineOpts []game.Option
}

type roomServiceState struct {
	mu sync.RWMutex

	// 从房间 ID 到状态机的映射
	rooms map[string]game.StateMachine
}

func NewRoomService(defaults RoomDefaults, agents *agent.Pipeline, machineOpts ...game.Option) *RoomService {
	if defaults.Mode == "" {
		defaults.Mode = game.MODE_CLASSIC
	}
	if defaults.SeatCount == 0 {
		defaults.SeatCount = 12
	}
	if agents == nil {
		agents = agent.NewPipeline(agent.NewRuleProvider(nil))
	}

	return &RoomService{
		state: &roomServiceState{
			rooms: make(map[string]game.StateMachine),
		},
		agents:      agents,
		defaults:    defaults,
		machineOpts: machineOpts,
	}
}

// GetOrCreate 返回已有的房间或新建一个；同一个房间号只会创建一次
func (rs *RoomService) GetOrCreate(roomID, mode string, seatCount int) (game.StateMachine, error) {
	if roomID == "" {
		return nil, invalidf("room id is empty")
	}

	rs.state.mu.RLock()
	sm, ok := rs.state.rooms[roomID]
	rs.state.mu.RUnlock()

	if ok {
		return sm, nil
	}

	if mode == "" {
		mode = rs.defaults.Mode
	}
	if seatCount == 0 {
		seatCount = rs.defaults.SeatCount
	}

	rs.state.mu.Lock()
	defer rs.state.mu.Unlock()

	if sm, ok := rs.state.rooms[roomID]; ok {
		return sm, nil
	}

	sm, err := game.NewStateMachine(mode, roomID, seatCount, rs.machineOpts...)
	if err != nil {
		return nil, err
	}

	rs.state.rooms[roomID] = sm

	zap.S().Infof("房间 %s 已创建，模式 %s，座位数 %d", roomID, mode, seatCount)

	return sm, nil
}

func (rs *RoomService) Get(roomID string) (game.StateMachine, error) {
	rs.state.mu.RLock()
	defer rs.state.mu.RUnlock()

	sm, ok := rs.state.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	return sm, nil
}

// Remove 删除房间以及该房间的决策记录
func (rs *RoomService) Remove(roomID string) error {
	rs.state.mu.Lock()

	if _, ok := rs.state.rooms[roomID]; !ok {
		rs.state.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	delete(rs.state.rooms, roomID)
	rs.state.mu.Unlock()

	rs.agents.Forget(roomID)

	zap.S().Infof("房间 %s 已删除", roomID)

	return nil
}

func (rs *RoomService) RoomIDs() []string {
	rs.state.mu.RLock()
	defer rs.state.mu.RUnlock()

	return slices.Sorted(maps.Keys(rs.state.rooms))
}

func (rs *RoomService) CreateRoom(req dto.CreateRoomRequest) (dto.CreateRoomResponse, error) {
	// 房间号冲突的概率极低，冲突时重新生成
	for range 3 {
		roomID := game.GenRoomID()

		if _, err := rs.Get(roomID); err == nil {
			continue
		}

		sm, err := rs.GetOrCreate(roomID, req.Mode, req.SeatCount)
		if err != nil {
			return dto.CreateRoomResponse{}, err
		}

		return dto.CreateRoomResponse{
			RoomID:    sm.RoomID(),
			Mode:      sm.Mode(),
			SeatCount: sm.SeatCount(),
		}, nil
	}

	return dto.CreateRoomResponse{}, errors.New("failed to allocate room id")
}

func (rs *RoomService) Health(roomID string) dto.RoomHealthResponse {
	sm, err := rs.Get(roomID)
	if err != nil {
		return dto.RoomHealthResponse{RoomID: roomID}
	}

	return dto.RoomHealthResponse{
		RoomID: roomID,
		Exists: true,
		Phase:  string(sm.State().Phase),
	}
}

// AssignRoles 房间不存在时按请求参数创建；座位数在房间创建后不能修改
func (rs *RoomService) AssignRoles(roomID string, req dto.AssignRolesRequest) dto.ActionResult {
	sm, err := rs.GetOrCreate(roomID, req.Mode, req.SeatCount)
	if err != nil {
		return dto.Fail(err)
	}

	if req.SeatCount != 0 && req.SeatCount != sm.SeatCount() {
		return dto.Fail(invalidf(
			"seat count is fixed at %d for room %s, remove the room to change it",
			sm.SeatCount(), roomID,
		))
	}
	if req.Mode != "" && req.Mode != sm.Mode() {
		return dto.Fail(invalidf("room %s already uses mode %s", roomID, sm.Mode()))
	}

	pins, err := parsePins(req.PinnedRoles)
	if err != nil {
		return dto.Fail(err)
	}

	roles, err := sm.AssignRoles(pins)
	if err != nil {
		zap.L().Debug("分配角色失败", zap.String("room_id", roomID), zap.Error(err))
		return dto.Fail(err)
	}

	// 新的一局，之前的决策记录不再有意义
	rs.agents.Forget(roomID)

	return dto.Ok("角色分配完成", dto.AssignRolesResponse{
		RoomID:      roomID,
		RolesBySeat: rolesToNames(roles),
	})
}

// GetState 返回房间投影；读操作会惰性处理超时，可能推进阶段
func (rs *RoomService) GetState(roomID string) (game.StateView, error) {
	sm, err := rs.Get(roomID)
	if err != nil {
		return game.StateView{}, err
	}

	return sm.State(), nil
}

func (rs *RoomService) AdvancePhase(roomID string) dto.ActionResult {
	sm, err := rs.Get(roomID)
	if err != nil {
		return dto.Fail(err)
	}

	phase, d, err := sm.AdvancePhase()
	if err != nil {
		return dto.Fail(err)
	}

	return dto.Ok("阶段已推进", dto.AdvancePhaseResponse{
		Phase:           string(phase),
		DurationSeconds: int(d.Seconds()),
	})
}

// Dispatch 把封装好的请求交给房间状态机
func (rs *RoomService) Dispatch(roomID string, req game.RequestWrapper) dto.ActionResult {
	sm, err := rs.Get(roomID)
	if err != nil {
		return dto.Fail(err)
	}

	res, err := sm.Handle(req)
	if err != nil {
		return dto.Fail(err)
	}

	return dto.Ok("ok", res)
}

func (rs *RoomService) SubmitVote(roomID string, req dto.VoteRequest) dto.ActionResult {
	return rs.Dispatch(roomID, game.WrapRequest(game.REQ_VOTE, game.VoteRequest{
		VoterSeat:  req.VoterSeat,
		TargetSeat: req.TargetSeat,
	}))
}

func (rs *RoomService) SubmitSpeech(roomID string, req dto.SpeechRequest) dto.ActionResult {
	return rs.Dispatch(roomID, game.WrapRequest(game.REQ_SPEECH, game.SpeechRequest{
		Seat: req.Seat,
		Text: req.Text,
	}))
}

func (rs *RoomService) SubmitNightAction(roomID string, req dto.NightActionRequest) dto.ActionResult {
	return rs.Dispatch(roomID, game.WrapRequest(game.REQ_NIGHT_ACTION, toNightActionRequest(req)))
}

func (rs *RoomService) AdvanceSpeaker(roomID string) dto.ActionResult {
	return rs.Dispatch(roomID, game.WrapRequest(game.REQ_ADVANCE_SPEAKER, game.AdvanceSpeakerRequest{}))
}

// AgentVote 由决策系统为电脑座位投票，再走普通投票的校验流程
// 决策调用不持有房间锁
func (rs *RoomService) AgentVote(ctx context.Context, roomID string, req dto.AgentVoteRequest) dto.ActionResult {
	sm, err := rs.Get(roomID)
	if err != nil {
		return dto.Fail(err)
	}

	view, err := sm.RoleView(req.Seat)
	if err != nil {
		return dto.Fail(err)
	}
	if view.Phase != game.PHASE_DAY_VOTING {
		return dto.Fail(invalidf("action Vote is not allowed in phase %s", view.Phase))
	}
	if !view.Alive {
		return dto.Fail(invalidf("player %d is not alive", req.Seat))
	}

	d := rs.agents.DecideVote(ctx, view, candidatesFor(view, nil))

	res, err := sm.Handle(game.WrapRequest(game.REQ_VOTE, game.VoteRequest{
		VoterSeat:  req.Seat,
		TargetSeat: d.Target,
	}))
	if err != nil {
		return dto.Fail(err)
	}

	zap.L().Info(
		"电脑玩家投票",
		zap.String("room_id", roomID),
		zap.Int("seat", req.Seat),
		zap.Int("target", d.Target),
		zap.String("reason", d.Reason),
	)

	return dto.Ok("投票成功", dto.AgentDecisionResponse{
		Seat:       req.Seat,
		TargetSeat: d.Target,
		Reason:     d.Reason,
		Result:     res,
	})
}

// AgentNightAction 由决策系统为电脑座位选择夜晚行动，再走普通夜晚行动的校验流程
func (rs *RoomService) AgentNightAction(ctx context.Context, roomID string, req dto.AgentActionRequest) dto.ActionResult {
	sm, err := rs.Get(roomID)
	if err != nil {
		return dto.Fail(err)
	}

	view, err := sm.RoleView(req.Seat)
	if err != nil {
		return dto.Fail(err)
	}

	if req.Role != "" && game.Role(strings.ToLower(req.Role)) != view.Role {
		return dto.Fail(invalidf("Role mismatch"))
	}
	if view.Phase != game.PHASE_NIGHT_ACTION {
		return dto.Fail(invalidf("action NightAction is not allowed in phase %s", view.Phase))
	}
	if !view.Role.HasNightAction() {
		return dto.Fail(invalidf("role %s has no night action", view.Role))
	}
	if view.Role != view.NightCurrentRole {
		return dto.Fail(invalidf("Not your turn. Current: %s, Your: %s", view.NightCurrentRole, view.Role))
	}

	d := rs.agents.DecideNightAction(ctx, view, candidatesFor(view, req.AvailableTargets))

	res, err := sm.Handle(game.WrapRequest(game.REQ_NIGHT_ACTION, game.NightActionRequest{
		PlayerSeat: req.Seat,
		Role:       view.Role,
		ActionType: d.Action,
		TargetSeat: d.Target,
	}))
	if err != nil {
		return dto.Fail(err)
	}

	zap.L().Info(
		"电脑玩家夜晚行动",
		zap.String("room_id", roomID),
		zap.Int("seat", req.Seat),
		zap.String("role", string(view.Role)),
		zap.String("action", string(d.Action)),
		zap.Int("target", d.Target),
		zap.String("reason", d.Reason),
	)

	return dto.Ok("行动成功", dto.AgentDecisionResponse{
		Seat:       req.Seat,
		ActionType: string(d.Action),
		TargetSeat: d.Target,
		Reason:     d.Reason,
		Result:     res,
	})
}

// RoleView 返回某个座位按身份过滤后的信息
func (rs *RoomService) RoleView(roomID string, seat int) (game.RoleView, error) {
	sm, err := rs.Get(roomID)
	if err != nil {
		return game.RoleView{}, err
	}

	return sm.RoleView(seat)
}

// ListMessages 返回 ID 严格大于 after 的消息，after 为 0 时返回全部
func (rs *RoomService) ListMessages(roomID string, after int64) ([]game.Message, error) {
	sm, err := rs.Get(roomID)
	if err != nil {
		return nil, err
	}

	return sm.Messages(after), nil
}
