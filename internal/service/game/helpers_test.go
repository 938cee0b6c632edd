package game

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestMachine(t *testing.T, seats int, clock *fakeClock, opts ...Option) *ClassicMachine {
	t.Helper()

	opts = append([]Option{
		WithClock(clock.Now),
		WithRand(func() *rand.Rand { return rand.New(rand.NewPCG(7, 11)) }),
	}, opts...)

	gm, err := NewClassicMachine("room-test", MODE_CLASSIC, seats, ClassicRules(), opts...)
	require.NoError(t, err)

	return gm
}

// 12 人局固定前五个座位：1、2 狼人，3 预言家，4 女巫，5 猎人
var standardPins = map[int]Role{
	1: ROLE_WEREWOLF,
	2: ROLE_WEREWOLF,
	3: ROLE_SEER,
	4: ROLE_WITCH,
	5: ROLE_HUNTER,
}

// startNight 分配角色后直接推进到第一晚，白天无人投票
func startNight(t *testing.T, gm *ClassicMachine) {
	t.Helper()

	_, err := gm.AssignRoles(standardPins)
	require.NoError(t, err)

	toNight(t, gm)
}

func toNight(t *testing.T, gm *ClassicMachine) {
	t.Helper()

	for gm.ctx.Phase != PHASE_NIGHT_ACTION {
		_, _, err := gm.AdvancePhase()
		require.NoError(t, err)
	}
}

func vote(voter, target int) RequestWrapper {
	return WrapRequest(REQ_VOTE, VoteRequest{VoterSeat: voter, TargetSeat: target})
}

func nightAction(seat int, role Role, action ActionType, target int) RequestWrapper {
	return WrapRequest(REQ_NIGHT_ACTION, NightActionRequest{
		PlayerSeat: seat,
		Role:       role,
		ActionType: action,
		TargetSeat: target,
	})
}

func speech(seat int, text string) RequestWrapper {
	return WrapRequest(REQ_SPEECH, SpeechRequest{Seat: seat, Text: text})
}

func requireAccepted(t *testing.T, gm *ClassicMachine, req RequestWrapper) any {
	t.Helper()

	res, err := gm.Handle(req)
	require.NoError(t, err)

	return res
}

func requirePartition(t *testing.T, view StateView) {
	t.Helper()

	seen := make(map[int]bool)
	for _, seat := range view.AlivePlayers {
		require.False(t, seen[seat], "seat %d listed twice", seat)
		seen[seat] = true
	}
	for _, seat := range view.DeadPlayers {
		require.False(t, seen[seat], "seat %d both alive and dead", seat)
		seen[seat] = true
	}
	require.Len(t, seen, view.SeatCount)
}
