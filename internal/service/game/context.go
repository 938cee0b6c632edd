package game

import (
	"cmp"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	"go.uber.org/zap"
)

const (
	EXT_ANNOUNCEMENT      = "announcement"
	EXT_ANNOUNCEMENT_TIME = "announcement_time"
	EXT_ACTION_ROLE       = "action_role"
)

// GameContext 是一个房间的全部可变状态，只能由持有它的状态机修改
type GameContext struct {
	RoomID string
	Mode   string
	Phase  Phase
	Result GameResult
	Round  int

	// 座位数在房间创建时固定
	Players  map[int]*Player
	Messages []Message

	PhaseStartTime time.Time
	PhaseDuration  time.Duration

	// 夜晚子状态，每晚开始时清空
	NightCurrentRole      Role
	NightActionsCompleted []Role
	NightRoleStartTimes   map[Role]time.Time
	WerewolfChoices       map[int]int
	WerewolfKilled        int
	SeerChecked           int
	WitchSaved            int
	WitchPoisoned         int

	LastDeadPlayer *DeathRecord

	// 投票子状态
	VotingStartTime  time.Time
	VotingVotedCount int
	VotingResult     *VotingResult

	// 发言子状态，发言顺序在讨论阶段开始时固定
	SpeakingOrder       []int
	CurrentSpeakerIndex int
	SpeakingStartTime   time.Time
	Speeches            []Speech

	// 角色视角上下文，只服务于决策系统
	WerewolfContext *WerewolfContext
	SeerContext     []SeerCheck
	WitchContext    *WitchContext

	// 扩展字段：临时数据，不影响游戏逻辑
	Extensions map[string]any

	clock       func() time.Time
	rng         *rand.Rand
	lastMsgID   int64
	skippedRole Role
}

func newGameContext(roomID, mode string, seatCount int, clock func() time.Time, rng *rand.Rand) *GameContext {
	ctx := &GameContext{
		RoomID:     roomID,
		Mode:       mode,
		Phase:      PHASE_WAITING,
		Result:     RESULT_ONGOING,
		Players:    make(map[int]*Player, seatCount),
		Messages:   make([]Message, 0),
		Extensions: make(map[string]any),
		clock:      clock,
		rng:        rng,
	}

	for seat := 1; seat <= seatCount; seat++ {
		ctx.Players[seat] = &Player{Seat: seat, Alive: true}
	}

	ctx.resetNightState()

	return ctx
}

func (gc *GameContext) now() time.Time {
	return gc.clock()
}

func (gc *GameContext) SeatCount() int {
	return len(gc.Players)
}

func (gc *GameContext) Seats() []int {
	return slices.Sorted(maps.Keys(gc.Players))
}

func (gc *GameContext) GetAlivePlayers() []int {
	alive := make([]int, 0, len(gc.Players))
	for _, seat := range gc.Seats() {
		if gc.Players[seat].Alive {
			alive = append(alive, seat)
		}
	}

	return alive
}

func (gc *GameContext) GetDeadPlayers() []int {
	dead := make([]int, 0)
	for _, seat := range gc.Seats() {
		if !gc.Players[seat].Alive {
			dead = append(dead, seat)
		}
	}

	return dead
}

func (gc *GameContext) GetAliveByRole(role Role) []int {
	seats := make([]int, 0)
	for _, seat := range gc.Seats() {
		p := gc.Players[seat]
		if p.Alive && p.Role == role {
			seats = append(seats, seat)
		}
	}

	return seats
}

func (gc *GameContext) isAlive(seat int) bool {
	p, ok := gc.Players[seat]
	return ok && p.Alive
}

func (gc *GameContext) resetNightState() {
	gc.NightCurrentRole = ""
	gc.NightActionsCompleted = make([]Role, 0, len(NightRoleOrder))
	gc.NightRoleStartTimes = make(map[Role]time.Time)
	gc.WerewolfChoices = make(map[int]int)
	gc.WerewolfKilled = NO_SEAT
	gc.SeerChecked = NO_SEAT
	gc.WitchSaved = NO_SEAT
	gc.WitchPoisoned = NO_SEAT
}

// kill 把玩家标记为死亡并写入日志，死亡是单向的
func (gc *GameContext) kill(seat int, cause CauseOfDeath) bool {
	p, ok := gc.Players[seat]
	if !ok || !p.Alive {
		return false
	}

	p.Alive = false

	record := DeathRecord{
		Seat:     seat,
		Role:     p.Role,
		KilledBy: cause,
		Round:    gc.Round,
	}
	gc.LastDeadPlayer = &record

	gc.addMessage(MSG_PLAYER_DEATH, map[string]any{
		"seat":      seat,
		"role":      p.Role,
		"killed_by": cause,
		"round":     gc.Round,
	})

	zap.L().Info(
		"玩家死亡",
		zap.String("room_id", gc.RoomID),
		zap.Int("seat", seat),
		zap.String("role", string(p.Role)),
		zap.String("cause", string(cause)),
		zap.Int("round", gc.Round),
	)

	return true
}

// addMessage 追加一条日志，ID 取毫秒时间戳并保证严格递增
func (gc *GameContext) addMessage(msgType MessageType, content map[string]any) {
	now := gc.now()

	id := now.UnixMilli()
	if id <= gc.lastMsgID {
		id = gc.lastMsgID + 1
	}
	gc.lastMsgID = id

	gc.Messages = append(gc.Messages, Message{
		ID:        id,
		Timestamp: now.UnixMilli(),
		Type:      msgType,
		Content:   content,
	})
}

func (gc *GameContext) MessagesAfter(after int64) []Message {
	idx, found := slices.BinarySearchFunc(gc.Messages, after, func(m Message, id int64) int {
		return cmp.Compare(m.ID, id)
	})

	if found {
		idx++
	}

	return slices.Clone(gc.Messages[idx:])
}

func (gc *GameContext) setAnnouncement(text string, role Role) {
	if text == "" {
		gc.clearAnnouncement()
		return
	}

	gc.Extensions[EXT_ANNOUNCEMENT] = text
	gc.Extensions[EXT_ANNOUNCEMENT_TIME] = gc.now()

	if role != "" {
		gc.Extensions[EXT_ACTION_ROLE] = role
	} else {
		delete(gc.Extensions, EXT_ACTION_ROLE)
	}
}

func (gc *GameContext) clearAnnouncement() {
	delete(gc.Extensions, EXT_ANNOUNCEMENT)
	delete(gc.Extensions, EXT_ANNOUNCEMENT_TIME)
	delete(gc.Extensions, EXT_ACTION_ROLE)
}

// announcement 在读取时按时间判断是否过期，过期即清除
func (gc *GameContext) announcement(ttl time.Duration) string {
	text, ok := gc.Extensions[EXT_ANNOUNCEMENT].(string)
	if !ok {
		return ""
	}

	setAt, _ := gc.Extensions[EXT_ANNOUNCEMENT_TIME].(time.Time)
	if setAt.IsZero() || gc.now().Sub(setAt) >= ttl {
		gc.clearAnnouncement()
		return ""
	}

	return text
}

// checkGameOver 判定胜负：狼人全灭则好人胜，狼人数不少于好人数则狼人胜
func (gc *GameContext) checkGameOver() bool {
	if gc.Result != RESULT_ONGOING {
		return true
	}

	wolves, others := 0, 0
	for _, p := range gc.Players {
		if !p.Alive {
			continue
		}
		if p.Role == ROLE_WEREWOLF {
			wolves++
		} else {
			others++
		}
	}

	var winner string

	switch {
	case wolves == 0:
		gc.Result = RESULT_VILLAGER_WIN
		winner = "villager"
	case wolves >= others:
		gc.Result = RESULT_WEREWOLF_WIN
		winner = "werewolf"
	default:
		return false
	}

	gc.addMessage(MSG_GAME_END, map[string]any{
		"winner": winner,
		"round":  gc.Round,
	})

	zap.L().Info(
		"游戏结束",
		zap.String("room_id", gc.RoomID),
		zap.String("result", string(gc.Result)),
		zap.Int("round", gc.Round),
	)

	return true
}

// pickRandom 在候选中均匀随机选一个
func (gc *GameContext) pickRandom(candidates []int) int {
	if len(candidates) == 0 {
		return NO_SEAT
	}

	return candidates[gc.rng.IntN(len(candidates))]
}

// tally 统计票数，平票时在最高票中随机选择
func (gc *GameContext) tally(choices map[int]int) (int, map[int]int) {
	counts := make(map[int]int)
	for _, target := range choices {
		if target != NO_SEAT {
			counts[target]++
		}
	}

	if len(counts) == 0 {
		return NO_SEAT, counts
	}

	maxVotes := 0
	for _, c := range counts {
		maxVotes = max(maxVotes, c)
	}

	top := make([]int, 0)
	for _, seat := range slices.Sorted(maps.Keys(counts)) {
		if counts[seat] == maxVotes {
			top = append(top, seat)
		}
	}

	return gc.pickRandom(top), counts
}
