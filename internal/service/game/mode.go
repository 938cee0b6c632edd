package game

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

const (
	MODE_CLASSIC = "classic"
	MODE_QUICK   = "quick"
)

// StateMachine 是一种游戏模式的状态机
// 所有读操作都会先检查超时，因此可能推进阶段
type StateMachine interface {
	RoomID() string
	Mode() string
	SeatCount() int

	AssignRoles(pinned map[int]Role) (map[int]Role, error)
	AdvancePhase() (Phase, time.Duration, error)
	Handle(req RequestWrapper) (any, error)

	State() StateView
	RoleView(seat int) (RoleView, error)
	Messages(after int64) []Message
}

// Rules 是一局游戏的时间与限制参数
type Rules struct {
	// 各阶段的名义时长，0 表示立即结束的阶段
	Durations        map[Phase]time.Duration
	NightRoleTimeout time.Duration
	SpeakerBudget    time.Duration
	AnnouncementTTL  time.Duration
	MaxSpeechLength  int

	// 房间号 -> 座位 -> 固定角色
	PinnedRoles map[string]map[int]Role
}

func (r *Rules) pinsFor(roomID string) map[int]Role {
	return r.PinnedRoles[roomID]
}

func (r Rules) clone() Rules {
	c := r
	c.Durations = maps.Clone(r.Durations)
	c.PinnedRoles = maps.Clone(r.PinnedRoles)

	return c
}

func ClassicRules() Rules {
	return Rules{
		Durations: map[Phase]time.Duration{
			PHASE_WAITING:        0,
			PHASE_ROLE_ASSIGNED:  0,
			PHASE_DAY_DISCUSSION: 120 * time.Second,
			PHASE_DAY_VOTING:     20 * time.Second,
			PHASE_NIGHT_ACTION:   120 * time.Second,
			PHASE_GAME_OVER:      0,
		},
		NightRoleTimeout: 60 * time.Second,
		SpeakerBudget:    60 * time.Second,
		AnnouncementTTL:  5 * time.Second,
		MaxSpeechLength:  300,
	}
}

// QuickRules 与经典模式规则相同，只缩短了时间
func QuickRules() Rules {
	r := ClassicRules()
	r.Durations[PHASE_DAY_DISCUSSION] = 60 * time.Second
	r.Durations[PHASE_DAY_VOTING] = 15 * time.Second
	r.Durations[PHASE_NIGHT_ACTION] = 90 * time.Second
	r.NightRoleTimeout = 30 * time.Second
	r.SpeakerBudget = 30 * time.Second

	return r
}

type ModeFactory func(roomID string, seatCount int, opts ...Option) (StateMachine, error)

var (
	modesMu sync.RWMutex
	modes   = map[string]ModeFactory{
		MODE_CLASSIC: rulesFactory(MODE_CLASSIC, ClassicRules),
		MODE_QUICK:   rulesFactory(MODE_QUICK, QuickRules),
	}
)

func rulesFactory(mode string, rules func() Rules) ModeFactory {
	return func(roomID string, seatCount int, opts ...Option) (StateMachine, error) {
		gm, err := NewClassicMachine(roomID, mode, seatCount, rules(), opts...)
		if err != nil {
			return nil, err
		}

		return gm, nil
	}
}

// RegisterMode 注册新的游戏模式，重复注册会覆盖
func RegisterMode(mode string, factory ModeFactory) {
	modesMu.Lock()
	defer modesMu.Unlock()

	modes[mode] = factory
}

func SupportedModes() []string {
	modesMu.RLock()
	defer modesMu.RUnlock()

	return slices.Sorted(maps.Keys(modes))
}

func NewStateMachine(mode, roomID string, seatCount int, opts ...Option) (StateMachine, error) {
	modesMu.RLock()
	factory, ok := modes[mode]
	modesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %w %q", ErrInvalidRequest, ErrUnknownMode, mode)
	}

	return factory(roomID, seatCount, opts...)
}
