package game

import (
	"maps"
	"math"
	"slices"
	"time"
)

// 决策系统可参考的最近发言条数
const recentSpeechesInView = 20

// StateView 是房间状态的只读投影，阶段相关的字段只在对应阶段出现
type StateView struct {
	RoomID         string       `json:"roomId"`
	Mode           string       `json:"mode"`
	Phase          Phase        `json:"phase"`
	Result         GameResult   `json:"result"`
	Round          int          `json:"round"`
	SeatCount      int          `json:"seatCount"`
	AlivePlayers   []int        `json:"alivePlayers"`
	DeadPlayers    []int        `json:"deadPlayers"`
	TimeLeft       int          `json:"timeLeft"`
	Announcement   string       `json:"announcement,omitempty"`
	LastDeadPlayer *DeathRecord `json:"lastDeadPlayer,omitempty"`

	*DiscussionView
	*VotingView
	*NightView
}

type DiscussionView struct {
	SpeakingOrder       []int `json:"speakingOrder"`
	CurrentSpeaker      int   `json:"currentSpeaker"`
	CurrentSpeakerIndex int   `json:"currentSpeakerIndex"`
	SpeakingTimeLeft    int   `json:"speakingTimeLeft"`
}

type VoteStatus struct {
	Seat     int  `json:"seat"`
	HasVoted bool `json:"hasVoted"`
	VotedFor int  `json:"votedFor,omitempty"`
}

type VotingView struct {
	VotingTimeLeft   int           `json:"votingTimeLeft"`
	VotingVotedCount int           `json:"votingVotedCount"`
	VotingResult     *VotingResult `json:"votingResult,omitempty"`
	PlayerVotes      []VoteStatus  `json:"playerVotes"`
}

type NightView struct {
	CurrentRole           Role   `json:"currentRole"`
	NightTimeLeft         int    `json:"nightTimeLeft"`
	NightActionsCompleted []Role `json:"nightActionsCompleted"`
}

// secondsLeft 返回剩余秒数，限制在 [0, budget] 内
func secondsLeft(start time.Time, budget time.Duration, now time.Time) int {
	if budget <= 0 || start.IsZero() {
		return 0
	}

	left := min(max(budget-now.Sub(start), 0), budget)

	return int(math.Ceil(left.Seconds()))
}

func buildStateView(ctx *GameContext, rules *Rules) StateView {
	now := ctx.now()

	view := StateView{
		RoomID:       ctx.RoomID,
		Mode:         ctx.Mode,
		Phase:        ctx.Phase,
		Result:       ctx.Result,
		Round:        ctx.Round,
		SeatCount:    ctx.SeatCount(),
		AlivePlayers: ctx.GetAlivePlayers(),
		DeadPlayers:  ctx.GetDeadPlayers(),
		TimeLeft:     secondsLeft(ctx.PhaseStartTime, ctx.PhaseDuration, now),
		Announcement: ctx.announcement(rules.AnnouncementTTL),
	}

	if ctx.LastDeadPlayer != nil {
		record := *ctx.LastDeadPlayer
		view.LastDeadPlayer = &record
	}

	switch ctx.Phase {
	case PHASE_DAY_DISCUSSION:
		dv := &DiscussionView{
			SpeakingOrder:       slices.Clone(ctx.SpeakingOrder),
			CurrentSpeaker:      NO_SEAT,
			CurrentSpeakerIndex: ctx.CurrentSpeakerIndex,
			SpeakingTimeLeft:    secondsLeft(ctx.SpeakingStartTime, rules.SpeakerBudget, now),
		}
		if ctx.CurrentSpeakerIndex < len(ctx.SpeakingOrder) {
			dv.CurrentSpeaker = ctx.SpeakingOrder[ctx.CurrentSpeakerIndex]
		}
		view.DiscussionView = dv

	case PHASE_DAY_VOTING:
		vv := &VotingView{
			VotingTimeLeft:   secondsLeft(ctx.VotingStartTime, ctx.PhaseDuration, now),
			VotingVotedCount: ctx.VotingVotedCount,
			VotingResult:     copyVotingResult(ctx.VotingResult),
			PlayerVotes:      make([]VoteStatus, 0, ctx.SeatCount()),
		}
		for _, seat := range ctx.GetAlivePlayers() {
			p := ctx.Players[seat]
			vv.PlayerVotes = append(vv.PlayerVotes, VoteStatus{
				Seat:     seat,
				HasVoted: p.HasVoted,
				VotedFor: p.VotedFor,
			})
		}
		view.VotingView = vv

	case PHASE_NIGHT_ACTION:
		nv := &NightView{
			CurrentRole:           ctx.NightCurrentRole,
			NightActionsCompleted: slices.Clone(ctx.NightActionsCompleted),
		}
		if started, ok := ctx.NightRoleStartTimes[ctx.NightCurrentRole]; ok {
			nv.NightTimeLeft = secondsLeft(started, rules.NightRoleTimeout, now)
		}
		view.NightView = nv
	}

	return view
}

func copyVotingResult(vr *VotingResult) *VotingResult {
	if vr == nil {
		return nil
	}

	c := *vr
	c.VoteCounts = maps.Clone(vr.VoteCounts)
	c.VoteDetails = slices.Clone(vr.VoteDetails)

	return &c
}

// RoleView 是某个座位按身份过滤后的可见信息
// 狼人才能看到同伴，预言家只能看到自己的查验记录，女巫只能看到药水状态和当晚被刀的人
type RoleView struct {
	RoomID       string `json:"roomId"`
	Seat         int    `json:"seat"`
	Role         Role   `json:"role"`
	Alive        bool   `json:"alive"`
	Phase        Phase  `json:"phase"`
	Round        int    `json:"round"`
	AlivePlayers []int  `json:"alivePlayers"`
	DeadPlayers  []int  `json:"deadPlayers"`

	// 当前行动的夜晚角色，非夜晚为空
	NightCurrentRole Role `json:"nightCurrentRole,omitempty"`

	Teammates  []int       `json:"teammates,omitempty"`
	SeerChecks []SeerCheck `json:"seerChecks,omitempty"`
	Witch      *WitchView  `json:"witch,omitempty"`

	LastVotes      []VoteDetail `json:"lastVotes,omitempty"`
	RecentSpeeches []Speech     `json:"recentSpeeches,omitempty"`
	LastDeadSeat   int          `json:"lastDeadSeat,omitempty"`
}

type WitchView struct {
	HasSavePotion   bool `json:"hasSavePotion"`
	HasPoisonPotion bool `json:"hasPoisonPotion"`
	// 当晚被狼人选中的座位，NO_SEAT 表示还没有或平安夜
	TonightKilled int `json:"tonightKilled"`
}

func buildRoleView(ctx *GameContext, seat int) RoleView {
	p := ctx.Players[seat]

	view := RoleView{
		RoomID:       ctx.RoomID,
		Seat:         seat,
		Role:         p.Role,
		Alive:        p.Alive,
		Phase:        ctx.Phase,
		Round:        ctx.Round,
		AlivePlayers: ctx.GetAlivePlayers(),
		DeadPlayers:  ctx.GetDeadPlayers(),
	}

	if ctx.Phase == PHASE_NIGHT_ACTION {
		view.NightCurrentRole = ctx.NightCurrentRole
	}

	switch p.Role {
	case ROLE_WEREWOLF:
		if ctx.WerewolfContext != nil {
			view.Teammates = slices.DeleteFunc(slices.Clone(ctx.WerewolfContext.Teammates), func(s int) bool {
				return s == seat
			})
		}
	case ROLE_SEER:
		view.SeerChecks = slices.Clone(ctx.SeerContext)
	case ROLE_WITCH:
		if wc := ctx.WitchContext; wc != nil {
			view.Witch = &WitchView{
				HasSavePotion:   wc.HasSavePotion,
				HasPoisonPotion: wc.HasPoisonPotion,
				TonightKilled:   ctx.WerewolfKilled,
			}
		}
	}

	if ctx.VotingResult != nil {
		view.LastVotes = slices.Clone(ctx.VotingResult.VoteDetails)
	}

	if n := len(ctx.Speeches); n > 0 {
		view.RecentSpeeches = slices.Clone(ctx.Speeches[max(0, n-recentSpeechesInView):])
	}

	if ctx.LastDeadPlayer != nil {
		view.LastDeadSeat = ctx.LastDeadPlayer.Seat
	}

	return view
}
