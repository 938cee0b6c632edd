package game

import (
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 单次调用内最多连续切换的阶段数，正常流程不会超过 4 次
const maxSwitchesPerCall = 8

type options struct {
	clock   func() time.Time
	newRand func() *rand.Rand
	rules   []func(*Rules)
}

type Option func(*options)

func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithRand 设置随机数生成器的构造函数，每个状态机各调用一次，不共享同一个生成器
func WithRand(newRand func() *rand.Rand) Option {
	return func(o *options) { o.newRand = newRand }
}

func WithNightRoleTimeout(d time.Duration) Option {
	return withRule(func(r *Rules) { r.NightRoleTimeout = d })
}

func WithSpeakerBudget(d time.Duration) Option {
	return withRule(func(r *Rules) { r.SpeakerBudget = d })
}

func WithAnnouncementTTL(d time.Duration) Option {
	return withRule(func(r *Rules) { r.AnnouncementTTL = d })
}

func WithMaxSpeechLength(n int) Option {
	return withRule(func(r *Rules) { r.MaxSpeechLength = n })
}

func WithPhaseDuration(phase Phase, d time.Duration) Option {
	return withRule(func(r *Rules) { r.Durations[phase] = d })
}

// WithPinnedRoles 设置调试用的固定角色，键为房间号
func WithPinnedRoles(pins map[string]map[int]Role) Option {
	return withRule(func(r *Rules) { r.PinnedRoles = pins })
}

func newSeededRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func withRule(apply func(*Rules)) Option {
	return func(o *options) { o.rules = append(o.rules, apply) }
}

// ClassicMachine 是经典模式的状态机，持有房间的全部状态
// 所有方法都在房间锁内执行，不同房间之间互不影响
type ClassicMachine struct {
	mu sync.Mutex

	ctx     *GameContext
	rules   Rules
	handler StageHandler

	// handler 通过 onSwitch 请求的下一阶段
	nextPhase Phase
}

func NewClassicMachine(roomID, mode string, seatCount int, rules Rules, opts ...Option) (*ClassicMachine, error) {
	if err := validSeatCount(seatCount); err != nil {
		return nil, err
	}

	o := options{
		clock:   time.Now,
		newRand: newSeededRand,
	}
	for _, opt := range opts {
		opt(&o)
	}

	rules = rules.clone()
	for _, apply := range o.rules {
		apply(&rules)
	}

	gm := &ClassicMachine{
		ctx:   newGameContext(roomID, mode, seatCount, o.clock, o.newRand()),
		rules: rules,
	}

	gm.ctx.PhaseStartTime = gm.ctx.now()
	gm.handler = gm.newHandler(PHASE_WAITING)
	gm.handler.OnEnter(gm.ctx)

	zap.L().Info(
		"房间状态机已创建",
		zap.String("room_id", roomID),
		zap.String("mode", mode),
		zap.Int("seat_count", seatCount),
	)

	return gm, nil
}

func (gm *ClassicMachine) newHandler(phase Phase) StageHandler {
	h := newStageHandler(phase, &gm.rules)

	h.SetOnSwitch(func(next Phase) {
		gm.nextPhase = next
	})

	return h
}

func (gm *ClassicMachine) RoomID() string {
	return gm.ctx.RoomID
}

func (gm *ClassicMachine) Mode() string {
	return gm.ctx.Mode
}

func (gm *ClassicMachine) SeatCount() int {
	return gm.ctx.SeatCount()
}

// settle 执行 handler 请求的所有阶段切换
func (gm *ClassicMachine) settle() {
	for i := 0; gm.nextPhase != ""; i++ {
		if i >= maxSwitchesPerCall {
			zap.L().Error(
				"阶段切换次数过多，停止切换",
				zap.String("room_id", gm.ctx.RoomID),
				zap.String("phase", string(gm.ctx.Phase)),
				zap.String("next_phase", string(gm.nextPhase)),
			)
			gm.nextPhase = ""
			return
		}

		next := gm.nextPhase
		gm.nextPhase = ""

		if next == gm.ctx.Phase {
			continue
		}

		gm.switchStage(next)
	}
}

func (gm *ClassicMachine) switchStage(next Phase) {
	prev := gm.ctx.Phase

	gm.handler.OnExit(gm.ctx)

	gm.ctx.Phase = next
	gm.ctx.PhaseStartTime = gm.ctx.now()
	gm.ctx.PhaseDuration = gm.rules.Durations[next]

	gm.ctx.addMessage(MSG_PHASE_CHANGE, map[string]any{
		"from":  prev,
		"to":    next,
		"round": gm.ctx.Round,
	})
	gm.ctx.setAnnouncement(phaseAnnouncements[next], "")

	zap.L().Info(
		"阶段切换",
		zap.String("room_id", gm.ctx.RoomID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.Int("round", gm.ctx.Round),
	)

	gm.handler = gm.newHandler(next)
	gm.handler.OnEnter(gm.ctx)
}

// tick 惰性地处理超时，每次读写前调用
func (gm *ClassicMachine) tick() {
	gm.handler.OnTick(gm.ctx)
	gm.settle()
}

// AssignRoles 只允许在等待阶段或游戏结束后调用；结束后调用会重开一局，保留消息日志
func (gm *ClassicMachine) AssignRoles(pinned map[int]Role) (map[int]Role, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	gm.tick()

	phase := gm.ctx.Phase
	if phase != PHASE_WAITING && phase != PHASE_GAME_OVER {
		return nil, invalidf("roles already assigned, current phase %s", phase)
	}

	pins := make(map[int]Role)
	for seat, role := range gm.rules.pinsFor(gm.ctx.RoomID) {
		pins[seat] = role
	}
	for seat, role := range pinned {
		pins[seat] = role
	}

	target := gm.ctx
	if phase == PHASE_GAME_OVER {
		target = gm.freshContext()
	}

	if err := assignRoles(target, pins); err != nil {
		return nil, err
	}

	if target != gm.ctx {
		gm.ctx = target
		gm.handler = gm.newHandler(PHASE_WAITING)

		zap.L().Info("房间重新开局", zap.String("room_id", gm.ctx.RoomID))
	}

	gm.ctx.Round = 1
	gm.nextPhase = PHASE_ROLE_ASSIGNED
	gm.settle()

	return rolesBySeat(gm.ctx), nil
}

// freshContext 构造新一局的上下文，消息日志延续
func (gm *ClassicMachine) freshContext() *GameContext {
	old := gm.ctx

	ctx := newGameContext(old.RoomID, old.Mode, old.SeatCount(), old.clock, old.rng)
	ctx.Messages = old.Messages
	ctx.lastMsgID = old.lastMsgID
	ctx.PhaseStartTime = ctx.now()

	return ctx
}

// AdvancePhase 显式推进阶段，返回进入的阶段及其名义时长
func (gm *ClassicMachine) AdvancePhase() (Phase, time.Duration, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	gm.tick()

	if err := gm.handler.OnAdvance(gm.ctx); err != nil {
		return gm.ctx.Phase, 0, err
	}

	gm.settle()

	return gm.ctx.Phase, gm.ctx.PhaseDuration, nil
}

// Handle 处理玩家请求；发言在任何阶段都可以提交
func (gm *ClassicMachine) Handle(req RequestWrapper) (any, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	gm.tick()

	var (
		res any
		err error
	)

	if r := TryUnwrapSpeechRequest(req); r != nil {
		res, err = handleSpeech(gm.ctx, &gm.rules, r)
	} else {
		res, err = gm.handler.OnHandle(gm.ctx, req)
	}

	if err != nil {
		zap.L().Debug(
			"处理请求失败",
			zap.Error(err),
			zap.String("room_id", gm.ctx.RoomID),
			zap.String("phase", string(gm.handler.Stage())),
			zap.String("request_type", req.ReqType),
		)
		return nil, err
	}

	gm.settle()

	return res, nil
}

// State 返回前端投影；可能因超时推进阶段
func (gm *ClassicMachine) State() StateView {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	gm.tick()

	return buildStateView(gm.ctx, &gm.rules)
}

// RoleView 返回某个座位可见的信息，供决策系统使用
func (gm *ClassicMachine) RoleView(seat int) (RoleView, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	gm.tick()

	if _, ok := gm.ctx.Players[seat]; !ok {
		return RoleView{}, invalidf("seat %d does not exist", seat)
	}

	return buildRoleView(gm.ctx, seat), nil
}

// Messages 返回 ID 严格大于 after 的消息
func (gm *ClassicMachine) Messages(after int64) []Message {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	gm.tick()

	return gm.ctx.MessagesAfter(after)
}
