package service

import (
	"context"
	"slices"
	"sync"
	"testing"

	"werewolf-be/internal/config"
	"werewolf-be/internal/service/agent"
	"werewolf-be/internal/service/dto"
	"werewolf-be/internal/service/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider 按座位返回预设的决策
type scriptedProvider struct {
	night map[int]agent.Decision
	vote  map[int]agent.Decision
}

func (p *scriptedProvider) ChooseNightAction(ctx context.Context, req agent.Request) (agent.Decision, error) {
	return p.night[req.View.Seat], nil
}

func (p *scriptedProvider) ChooseVote(ctx context.Context, req agent.Request) (agent.Decision, error) {
	return p.vote[req.View.Seat], nil
}

var standardPins = map[int]string{
	1: "werewolf",
	2: "werewolf",
	3: "seer",
	4: "witch",
	5: "hunter",
}

func newTestService(provider agent.Provider) (*RoomService, *agent.Pipeline) {
	pipeline := agent.NewPipeline(provider)
	return NewRoomService(RoomDefaults{Mode: game.MODE_CLASSIC, SeatCount: 12}, pipeline), pipeline
}

func advanceTo(t *testing.T, rs *RoomService, roomID string, phase game.Phase) {
	t.Helper()

	for range 10 {
		view, err := rs.GetState(roomID)
		require.NoError(t, err)
		if view.Phase == phase {
			return
		}

		res := rs.AdvancePhase(roomID)
		require.True(t, res.Success, res.Message)
	}

	t.Fatalf("room %s never reached %s", roomID, phase)
}

func TestRoomService_GetOrCreateOnce(t *testing.T) {
	rs, _ := newTestService(agent.NewRuleProvider(nil))

	var wg sync.WaitGroup
	machines := make([]game.StateMachine, 32)

	for i := range machines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm, err := rs.GetOrCreate("r1", "", 0)
			assert.NoError(t, err)
			machines[i] = sm
		}()
	}
	wg.Wait()

	for _, sm := range machines {
		assert.Same(t, machines[0], sm)
	}
	assert.Equal(t, []string{"r1"}, rs.RoomIDs())
	assert.Equal(t, 12, machines[0].SeatCount())
}

func TestRoomService_UnknownRoom(t *testing.T) {
	rs, _ := newTestService(agent.NewRuleProvider(nil))

	_, err := rs.Get("missing")
	require.ErrorIs(t, err, ErrRoomNotFound)

	_, err = rs.GetState("missing")
	require.ErrorIs(t, err, ErrRoomNotFound)

	res := rs.SubmitVote("missing", dto.VoteRequest{VoterSeat: 1, TargetSeat: 2})
	assert.False(t, res.Success)

	require.ErrorIs(t, rs.Remove("missing"), ErrRoomNotFound)

	assert.Equal(t, dto.RoomHealthResponse{RoomID: "missing"}, rs.Health("missing"))
}

func TestRoomService_CreateRoom(t *testing.T) {
	rs, _ := newTestService(agent.NewRuleProvider(nil))

	resp, err := rs.CreateRoom(dto.CreateRoomRequest{Mode: game.MODE_QUICK, SeatCount: 6})
	require.NoError(t, err)
	assert.Len(t, resp.RoomID, 8)
	assert.Equal(t, game.MODE_QUICK, resp.Mode)
	assert.Equal(t, 6, resp.SeatCount)

	health := rs.Health(resp.RoomID)
	assert.True(t, health.Exists)
	assert.Equal(t, string(game.PHASE_WAITING), health.Phase)

	_, err = rs.CreateRoom(dto.CreateRoomRequest{Mode: "blitz"})
	require.ErrorIs(t, err, game.ErrUnknownMode)

	_, err = rs.CreateRoom(dto.CreateRoomRequest{SeatCount: 2})
	require.ErrorIs(t, err, game.ErrInvalidRequest)
}

func TestRoomService_AssignRoles(t *testing.T) {
	rs, _ := newTestService(agent.NewRuleProvider(nil))

	res := rs.AssignRoles("r1", dto.AssignRolesRequest{PinnedRoles: standardPins})
	require.True(t, res.Success, res.Message)

	resp := res.Data.(dto.AssignRolesResponse)
	assert.Len(t, resp.RolesBySeat, 12)
	assert.Equal(t, "werewolf", resp.RolesBySeat[1])
	assert.Equal(t, "witch", resp.RolesBySeat[4])

	// 已分配过角色
	res = rs.AssignRoles("r1", dto.AssignRolesRequest{})
	assert.False(t, res.Success)
}

func TestRoomService_AssignRolesRejectsBadInput(t *testing.T) {
	rs, _ := newTestService(agent.NewRuleProvider(nil))

	_, err := rs.GetOrCreate("r1", "", 8)
	require.NoError(t, err)

	res := rs.AssignRoles("r1", dto.AssignRolesRequest{SeatCount: 10})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "seat count is fixed at 8")

	res = rs.AssignRoles("r1", dto.AssignRolesRequest{Mode: game.MODE_QUICK})
	assert.False(t, res.Success)

	res = rs.AssignRoles("r1", dto.AssignRolesRequest{PinnedRoles: map[int]string{1: "vampire"}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, `unknown role "vampire"`)

	view, err := rs.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, game.PHASE_WAITING, view.Phase)
}

func TestRoomService_AgentsPlayANight(t *testing.T) {
	rs, _ := newTestService(&scriptedProvider{
		night: map[int]agent.Decision{
			1: {Target: 6, Action: game.ACTION_KILL, Reason: "6号像神"},
			2: {Target: 6, Action: game.ACTION_KILL, Reason: "跟队友"},
			4: {Target: 6, Action: game.ACTION_SAVE, Reason: "首夜救人"},
			3: {Target: 1, Action: game.ACTION_CHECK, Reason: "1号发言太稳"},
		},
	})

	require.True(t, rs.AssignRoles("r1", dto.AssignRolesRequest{PinnedRoles: standardPins}).Success)
	advanceTo(t, rs, "r1", game.PHASE_NIGHT_ACTION)

	// 狼人还没行动，预言家不能抢先
	res := rs.AgentNightAction(context.Background(), "r1", dto.AgentActionRequest{Seat: 3})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Not your turn")

	res = rs.AgentNightAction(context.Background(), "r1", dto.AgentActionRequest{Seat: 1, Role: "seer"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Role mismatch")

	res = rs.AgentNightAction(context.Background(), "r1", dto.AgentActionRequest{Seat: 1, Role: "werewolf"})
	require.True(t, res.Success, res.Message)
	decision := res.Data.(dto.AgentDecisionResponse)
	assert.Equal(t, 6, decision.TargetSeat)
	assert.True(t, decision.Result.(game.NightActionResponse).Pending)

	res = rs.AgentNightAction(context.Background(), "r1", dto.AgentActionRequest{Seat: 2})
	require.True(t, res.Success, res.Message)

	res = rs.AgentNightAction(context.Background(), "r1", dto.AgentActionRequest{Seat: 4})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, string(game.ACTION_SAVE), res.Data.(dto.AgentDecisionResponse).ActionType)

	res = rs.AgentNightAction(context.Background(), "r1", dto.AgentActionRequest{Seat: 3})
	require.True(t, res.Success, res.Message)

	view, err := rs.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, game.PHASE_DAY_DISCUSSION, view.Phase)
	assert.Equal(t, 2, view.Round)
	assert.Len(t, view.AlivePlayers, 12)

	sm, err := rs.Get("r1")
	require.NoError(t, err)
	seer, err := sm.RoleView(3)
	require.NoError(t, err)
	require.Len(t, seer.SeerChecks, 1)
	assert.Equal(t, game.ROLE_WEREWOLF, seer.SeerChecks[0].Result)
}

func TestRoomService_AgentVotes(t *testing.T) {
	votes := make(map[int]agent.Decision)
	for seat := 2; seat <= 12; seat++ {
		votes[seat] = agent.Decision{Target: 1, Reason: "1号可疑"}
	}
	votes[1] = agent.Decision{Target: 2, Reason: "反咬"}

	rs, pipeline := newTestService(&scriptedProvider{vote: votes})

	require.True(t, rs.AssignRoles("r1", dto.AssignRolesRequest{PinnedRoles: standardPins}).Success)

	res := rs.AgentVote(context.Background(), "r1", dto.AgentVoteRequest{Seat: 1})
	assert.False(t, res.Success)

	advanceTo(t, rs, "r1", game.PHASE_DAY_VOTING)

	for seat := 1; seat <= 12; seat++ {
		res := rs.AgentVote(context.Background(), "r1", dto.AgentVoteRequest{Seat: seat})
		require.True(t, res.Success, res.Message)
	}

	view, err := rs.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, game.PHASE_NIGHT_ACTION, view.Phase)
	assert.NotContains(t, view.AlivePlayers, 1)
	assert.Contains(t, view.DeadPlayers, 1)

	assert.Equal(t, []string{"第1轮：1号可疑"}, pipeline.Memory("r1", 5))

	require.NoError(t, rs.Remove("r1"))
	assert.Empty(t, pipeline.Memory("r1", 5))
}

func TestRoomService_SubmitAndList(t *testing.T) {
	rs, _ := newTestService(agent.NewRuleProvider(nil))

	require.True(t, rs.AssignRoles("r1", dto.AssignRolesRequest{PinnedRoles: standardPins}).Success)
	advanceTo(t, rs, "r1", game.PHASE_DAY_DISCUSSION)

	res := rs.SubmitSpeech("r1", dto.SpeechRequest{Seat: 3, Text: "我是预言家"})
	require.True(t, res.Success, res.Message)

	res = rs.SubmitSpeech("r1", dto.SpeechRequest{Seat: 3, Text: "   "})
	assert.False(t, res.Success)

	res = rs.AdvanceSpeaker("r1")
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 2, res.Data.(game.AdvanceSpeakerResponse).CurrentSpeaker)

	res = rs.SubmitVote("r1", dto.VoteRequest{VoterSeat: 1, TargetSeat: 2})
	assert.False(t, res.Success)

	msgs, err := rs.ListMessages("r1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)

	last := msgs[len(msgs)-1]
	assert.Equal(t, game.MSG_PHASE_CHANGE, last.Type)
	assert.Equal(t, game.PHASE_DAY_DISCUSSION, last.Content["to"])

	later, err := rs.ListMessages("r1", last.ID)
	require.NoError(t, err)
	assert.Empty(t, later)
}

func TestRoomService_ConcurrentMutationsOnOneRoom(t *testing.T) {
	rs, _ := newTestService(agent.NewRuleProvider(nil))

	require.True(t, rs.AssignRoles("r1", dto.AssignRolesRequest{PinnedRoles: standardPins}).Success)
	advanceTo(t, rs, "r1", game.PHASE_DAY_VOTING)

	var wg sync.WaitGroup

	for seat := 1; seat <= 12; seat++ {
		target := 1
		if seat == 1 {
			target = 2
		}

		wg.Add(3)
		go func() {
			defer wg.Done()
			res := rs.SubmitVote("r1", dto.VoteRequest{VoterSeat: seat, TargetSeat: target})
			assert.True(t, res.Success, res.Message)
		}()
		go func() {
			defer wg.Done()
			_, err := rs.GetState("r1")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := rs.ListMessages("r1", 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := rs.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, game.PHASE_NIGHT_ACTION, view.Phase)
	assert.Equal(t, []int{1}, view.DeadPlayers)
	assert.Len(t, view.AlivePlayers, 11)

	// 存活与死亡座位恰好划分全部座位
	seen := make(map[int]bool)
	for _, seat := range append(slices.Clone(view.AlivePlayers), view.DeadPlayers...) {
		assert.False(t, seen[seat], "seat %d listed twice", seat)
		seen[seat] = true
	}
	assert.Len(t, seen, view.SeatCount)
}

func TestCandidatesFor(t *testing.T) {
	view := game.RoleView{Seat: 3, AlivePlayers: []int{1, 2, 3, 5}}

	assert.Equal(t, []int{1, 2, 5}, candidatesFor(view, nil))
	assert.Equal(t, []int{1, 5}, candidatesFor(view, []int{5, 4, 3, 1, 5}))
}

func TestMachineOptions(t *testing.T) {
	opts, err := MachineOptions(
		config.GameConfig{MaxSpeechLength: 5},
		config.DebugConfig{PinnedRoles: map[string]string{"r9_1": "seer", "r9_2": "werewolf"}},
	)
	require.NoError(t, err)

	rs := NewRoomService(RoomDefaults{SeatCount: 6}, nil, opts...)

	res := rs.AssignRoles("r9", dto.AssignRolesRequest{})
	require.True(t, res.Success, res.Message)
	roles := res.Data.(dto.AssignRolesResponse).RolesBySeat
	assert.Equal(t, "seer", roles[1])
	assert.Equal(t, "werewolf", roles[2])

	res = rs.SubmitSpeech("r9", dto.SpeechRequest{Seat: 1, Text: "一二三四五六"})
	assert.False(t, res.Success)

	_, err = MachineOptions(config.GameConfig{}, config.DebugConfig{PinnedRoles: map[string]string{"r9_1": "king"}})
	require.Error(t, err)

	_, err = MachineOptions(config.GameConfig{}, config.DebugConfig{PinnedRoles: map[string]string{"bad": "seer"}})
	require.Error(t, err)
}
