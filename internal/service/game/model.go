package game

// 玩家身份
type Role string

const (
	ROLE_WEREWOLF Role = "werewolf"
	ROLE_VILLAGER Role = "villager"
	ROLE_SEER     Role = "seer"
	ROLE_WITCH    Role = "witch"
	ROLE_HUNTER   Role = "hunter"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case ROLE_WEREWOLF, ROLE_VILLAGER, ROLE_SEER, ROLE_WITCH, ROLE_HUNTER:
		return r, true
	}

	return "", false
}

// 夜晚的固定行动顺序：狼人 -> 女巫 -> 预言家
// 角色上下文初始化、夜晚结算和前端投影都使用这个顺序
var NightRoleOrder = []Role{ROLE_WEREWOLF, ROLE_WITCH, ROLE_SEER}

func (r Role) HasNightAction() bool {
	for _, nr := range NightRoleOrder {
		if nr == r {
			return true
		}
	}

	return false
}

// 游戏结果
type GameResult string

const (
	RESULT_ONGOING      GameResult = "ongoing"
	RESULT_WEREWOLF_WIN GameResult = "werewolf_win"
	RESULT_VILLAGER_WIN GameResult = "villager_win"
)

// 死亡原因
type CauseOfDeath string

const (
	CAUSE_VOTE     CauseOfDeath = "vote"
	CAUSE_WEREWOLF CauseOfDeath = "werewolf"
	CAUSE_WITCH    CauseOfDeath = "witch"
)

// 夜晚行动类型
type ActionType string

const (
	ACTION_KILL   ActionType = "kill"
	ACTION_CHECK  ActionType = "check"
	ACTION_SAVE   ActionType = "save"
	ACTION_POISON ActionType = "poison"
)

// 每个夜晚角色允许的行动
var roleActions = map[Role][]ActionType{
	ROLE_WEREWOLF: {ACTION_KILL},
	ROLE_SEER:     {ACTION_CHECK},
	ROLE_WITCH:    {ACTION_SAVE, ACTION_POISON},
}

func (r Role) Allows(action ActionType) bool {
	for _, a := range roleActions[r] {
		if a == action {
			return true
		}
	}

	return false
}

// NO_SEAT 表示"没有目标"，座位号从 1 开始
const NO_SEAT = 0

type Player struct {
	Seat     int  `json:"seat"`
	Role     Role `json:"role"`
	Alive    bool `json:"alive"`
	HasVoted bool `json:"hasVoted"`
	VotedFor int  `json:"votedFor,omitempty"`
}

// 消息日志中的事件类型
type MessageType string

const (
	MSG_PHASE_CHANGE MessageType = "phase_change"
	MSG_PLAYER_DEATH MessageType = "player_death"
	MSG_VOTE_RESULT  MessageType = "vote_result"
	MSG_GAME_END     MessageType = "game_end"
)

// Message 是房间事件日志中的一条记录，只追加不修改
type Message struct {
	ID        int64          `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Type      MessageType    `json:"type"`
	Content   map[string]any `json:"content"`
}

type DeathRecord struct {
	Seat     int          `json:"seat"`
	Role     Role         `json:"role"`
	KilledBy CauseOfDeath `json:"killedBy"`
	Round    int          `json:"round"`
}

type SeerCheck struct {
	Round  int  `json:"round"`
	Seat   int  `json:"seat"`
	Result Role `json:"result"`
}

type WerewolfContext struct {
	Teammates []int `json:"teammates"`
}

// 药水状态在整局游戏中保留，不随夜晚重置
type WitchContext struct {
	HasSavePotion   bool  `json:"hasSavePotion"`
	HasPoisonPotion bool  `json:"hasPoisonPotion"`
	SavedHistory    []int `json:"savedHistory"`
	PoisonedHistory []int `json:"poisonedHistory"`
}

type VoteDetail struct {
	Voter  int `json:"voter"`
	Target int `json:"target"`
}

type VotingResult struct {
	// NO_SEAT 表示无人出局
	VotedOut    int          `json:"votedOut"`
	VoteCounts  map[int]int  `json:"voteCounts"`
	VoteDetails []VoteDetail `json:"voteDetails"`
}

type Speech struct {
	Seat      int    `json:"seat"`
	Text      string `json:"text"`
	Round     int    `json:"round"`
	Timestamp int64  `json:"timestamp"`
}
