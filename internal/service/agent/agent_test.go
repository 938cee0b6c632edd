package agent

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"werewolf-be/internal/config"
	"werewolf-be/internal/service/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type stubModel struct {
	reply   string
	err     error
	delay   time.Duration
	prompts []string
}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.err != nil {
		return nil, m.err
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.reply}},
	}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type stubProvider struct {
	night Decision
	vote  Decision
	err   error
}

func (p *stubProvider) ChooseNightAction(ctx context.Context, req Request) (Decision, error) {
	return p.night, p.err
}

func (p *stubProvider) ChooseVote(ctx context.Context, req Request) (Decision, error) {
	return p.vote, p.err
}

func seededRand() *rand.Rand {
	return rand.New(rand.NewPCG(3, 5))
}

func wolfView() game.RoleView {
	return game.RoleView{
		RoomID:       "r1",
		Seat:         1,
		Role:         game.ROLE_WEREWOLF,
		Alive:        true,
		Round:        1,
		AlivePlayers: []int{1, 2, 3, 4, 5, 6},
		Teammates:    []int{2},
	}
}

func witchView(killed int, save, poison bool) game.RoleView {
	return game.RoleView{
		RoomID:       "r1",
		Seat:         4,
		Role:         game.ROLE_WITCH,
		Alive:        true,
		Round:        1,
		AlivePlayers: []int{1, 2, 3, 4, 5, 6},
		Witch: &game.WitchView{
			HasSavePotion:   save,
			HasPoisonPotion: poison,
			TonightKilled:   killed,
		},
	}
}

func TestRuleProvider_WerewolfAvoidsTeammates(t *testing.T) {
	rp := NewRuleProvider(seededRand())

	for range 50 {
		d, err := rp.ChooseNightAction(context.Background(), Request{
			View:       wolfView(),
			Candidates: []int{2, 3, 4, 5, 6},
		})
		require.NoError(t, err)
		assert.NotEqual(t, 2, d.Target)
		assert.Contains(t, []int{3, 4, 5, 6}, d.Target)
		assert.Equal(t, game.ACTION_KILL, d.Action)
	}
}

func TestRuleProvider_SeerChecksUnknownAndVotesWolf(t *testing.T) {
	rp := NewRuleProvider(seededRand())
	view := game.RoleView{
		RoomID: "r1",
		Seat:   3,
		Role:   game.ROLE_SEER,
		SeerChecks: []game.SeerCheck{
			{Round: 1, Seat: 5, Result: game.ROLE_VILLAGER},
			{Round: 2, Seat: 6, Result: game.ROLE_WEREWOLF},
		},
	}

	for range 20 {
		d, err := rp.ChooseNightAction(context.Background(), Request{View: view, Candidates: []int{1, 5, 6}})
		require.NoError(t, err)
		assert.Equal(t, 1, d.Target)
	}

	d, err := rp.ChooseVote(context.Background(), Request{View: view, Candidates: []int{1, 2, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, 6, d.Target)
}

func TestRuleProvider_WitchSavesWhilePotionLasts(t *testing.T) {
	rp := NewRuleProvider(seededRand())

	d, err := rp.ChooseNightAction(context.Background(), Request{View: witchView(6, true, true)})
	require.NoError(t, err)
	assert.Equal(t, Decision{Target: 6, Action: game.ACTION_SAVE, Reason: "解药救人"}, d)

	d, err = rp.ChooseNightAction(context.Background(), Request{View: witchView(6, false, true)})
	require.NoError(t, err)
	assert.Equal(t, game.NO_SEAT, d.Target)
}

func TestPipeline_AcceptsValidDecision(t *testing.T) {
	p := NewPipeline(&stubProvider{
		night: Decision{Target: 5, Action: game.ACTION_KILL, Reason: "5号发言可疑"},
	}, WithRand(seededRand()))

	d := p.DecideNightAction(context.Background(), wolfView(), []int{2, 3, 4, 5, 6})

	assert.Equal(t, 5, d.Target)
	assert.Equal(t, []string{"第1轮：5号发言可疑"}, p.Memory("r1", 1))
}

func TestPipeline_TeammateReplacedByRandom(t *testing.T) {
	p := NewPipeline(&stubProvider{
		night: Decision{Target: 2, Action: game.ACTION_KILL},
		vote:  Decision{Target: 2},
	}, WithRand(seededRand()))

	for range 20 {
		d := p.DecideNightAction(context.Background(), wolfView(), []int{2, 3, 4})
		assert.Contains(t, []int{3, 4}, d.Target)

		d = p.DecideVote(context.Background(), wolfView(), []int{2, 3, 4})
		assert.Contains(t, []int{3, 4}, d.Target)
	}
}

func TestPipeline_ProviderFailureFallsBack(t *testing.T) {
	p := NewPipeline(&stubProvider{err: errors.New("boom")}, WithRand(seededRand()))

	view := wolfView()
	view.Role = game.ROLE_VILLAGER
	view.Teammates = nil

	d := p.DecideVote(context.Background(), view, []int{3, 4})
	assert.Contains(t, []int{3, 4}, d.Target)

	d = p.DecideNightAction(context.Background(), witchView(6, true, true), []int{1, 2, 3, 5, 6})
	assert.Equal(t, game.ACTION_SAVE, d.Action)
	assert.Equal(t, 6, d.Target)
}

func TestPipeline_OutOfCandidatesFallsBack(t *testing.T) {
	p := NewPipeline(&stubProvider{vote: Decision{Target: 12}}, WithRand(seededRand()))

	d := p.DecideVote(context.Background(), wolfView(), []int{3, 4})
	assert.Contains(t, []int{3, 4}, d.Target)
}

func TestPipeline_SlowProviderTimesOut(t *testing.T) {
	llm := &stubModel{reply: `{"targetSeat": 3, "reason": "x"}`, delay: time.Second}
	p := NewPipeline(NewLLMProvider(llm, nil), WithTimeout(20*time.Millisecond), WithRand(seededRand()))

	start := time.Now()
	d := p.DecideVote(context.Background(), wolfView(), []int{3, 4})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, []int{3, 4}, d.Target)
	assert.Contains(t, d.Reason, "兜底")
}

// blockingProvider 不理会 ctx，直到 release 关闭才返回
type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) ChooseNightAction(ctx context.Context, req Request) (Decision, error) {
	<-p.release
	return Decision{Target: req.Candidates[0], Action: game.ACTION_KILL, Reason: "迟到的决策"}, nil
}

func (p *blockingProvider) ChooseVote(ctx context.Context, req Request) (Decision, error) {
	<-p.release
	return Decision{Target: req.Candidates[0], Reason: "迟到的决策"}, nil
}

func TestPipeline_ProviderIgnoringContextTimesOut(t *testing.T) {
	provider := &blockingProvider{release: make(chan struct{})}
	defer close(provider.release)

	p := NewPipeline(provider, WithTimeout(50*time.Millisecond), WithRand(seededRand()))

	start := time.Now()
	d := p.DecideVote(context.Background(), wolfView(), []int{3, 4})

	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, []int{3, 4}, d.Target)
	assert.Equal(t, "随机投票（兜底）", d.Reason)

	start = time.Now()
	d = p.DecideNightAction(context.Background(), wolfView(), []int{3, 4})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, game.ACTION_KILL, d.Action)
	assert.Equal(t, "随机击杀（兜底）", d.Reason)
}

type panickyProvider struct{}

func (panickyProvider) ChooseNightAction(ctx context.Context, req Request) (Decision, error) {
	panic("boom")
}

func (panickyProvider) ChooseVote(ctx context.Context, req Request) (Decision, error) {
	panic("boom")
}

func TestPipeline_ProviderPanicFallsBack(t *testing.T) {
	p := NewPipeline(panickyProvider{}, WithRand(seededRand()))

	d := p.DecideVote(context.Background(), wolfView(), []int{3, 4})
	assert.Contains(t, []int{3, 4}, d.Target)
	assert.Equal(t, "随机投票（兜底）", d.Reason)
}

func TestPipeline_WitchDecisionValidated(t *testing.T) {
	p := NewPipeline(&stubProvider{
		night: Decision{Target: 3, Action: game.ACTION_SAVE},
	}, WithRand(seededRand()))

	// 救的不是今晚被刀的人，按规则兜底
	d := p.DecideNightAction(context.Background(), witchView(6, true, true), []int{1, 2, 3, 5, 6})
	assert.Equal(t, 6, d.Target)
	assert.Equal(t, game.ACTION_SAVE, d.Action)
}

func TestPipeline_ForgetClearsRoom(t *testing.T) {
	p := NewPipeline(&stubProvider{vote: Decision{Target: 3, Reason: "r"}}, WithRand(seededRand()))

	for range 8 {
		p.DecideVote(context.Background(), wolfView(), []int{3, 4})
	}
	assert.Len(t, p.Memory("r1", 1), memoryPerSeat)

	p.Forget("r1")
	assert.Empty(t, p.Memory("r1", 1))
}

func TestLLMProvider_ParsesAnswer(t *testing.T) {
	llm := &stubModel{reply: "```json\n{\"targetSeat\": 4, \"reason\": \"4号踩了预言家\"}\n```"}
	lp := NewLLMProvider(llm, nil)

	view := wolfView()
	view.RecentSpeeches = []game.Speech{{Seat: 4, Text: "3号是狼", Round: 1}}

	d, err := lp.ChooseNightAction(context.Background(), Request{
		Kind:       KIND_NIGHT_ACTION,
		View:       view,
		Candidates: []int{3, 4, 5},
		Memory:     []string{"第1轮：先刀神职"},
	})
	require.NoError(t, err)
	assert.Equal(t, Decision{Target: 4, Action: game.ACTION_KILL, Reason: "4号踩了预言家"}, d)

	prompt := strings.Join(llm.prompts, "\n")
	assert.Contains(t, prompt, "狼人队友：2")
	assert.Contains(t, prompt, "可选目标：3, 4, 5")
	assert.Contains(t, prompt, "4号：3号是狼")
	assert.Contains(t, prompt, "先刀神职")
}

func TestLLMProvider_WitchTargetMapping(t *testing.T) {
	cases := []struct {
		name   string
		reply  string
		view   game.RoleView
		expect Decision
	}{
		{"save victim", `{"targetSeat": 6, "reason": "a"}`, witchView(6, true, true), Decision{6, game.ACTION_SAVE, "a"}},
		{"poison other", `{"targetSeat": 2, "reason": "b"}`, witchView(6, true, true), Decision{2, game.ACTION_POISON, "b"}},
		{"decline", `{"targetSeat": null, "reason": "c"}`, witchView(6, true, true), Decision{game.NO_SEAT, game.ACTION_SAVE, "c"}},
		{"no poison left", `{"targetSeat": 2, "reason": "d"}`, witchView(6, true, false), Decision{game.NO_SEAT, game.ACTION_POISON, "d"}},
	}

	for _, tc := range cases {
		lp := NewLLMProvider(&stubModel{reply: tc.reply}, nil)

		d, err := lp.ChooseNightAction(context.Background(), Request{View: tc.view, Candidates: []int{1, 2, 3, 5, 6}})
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.expect, d, tc.name)
	}
}

func TestLLMProvider_RejectsGarbage(t *testing.T) {
	lp := NewLLMProvider(&stubModel{reply: "我觉得 3 号是狼"}, nil)

	_, err := lp.ChooseVote(context.Background(), Request{View: wolfView(), Candidates: []int{3}})
	require.ErrorIs(t, err, ErrNoDecision)
}

func TestNewModel_Disabled(t *testing.T) {
	llm, err := NewModel(context.Background(), config.AgentConfig{})
	require.NoError(t, err)
	assert.Nil(t, llm)

	_, err = NewModel(context.Background(), config.AgentConfig{Provider: "openai-compatible"})
	require.Error(t, err)

	_, err = NewModel(context.Background(), config.AgentConfig{Provider: "nope"})
	require.Error(t, err)
}

func TestNewPipelineFromConfig_RuleOnly(t *testing.T) {
	p, err := NewPipelineFromConfig(context.Background(), config.AgentConfig{TimeoutSeconds: 3})
	require.NoError(t, err)

	assert.IsType(t, &RuleProvider{}, p.provider)
	assert.Equal(t, 3*time.Second, p.timeout)

	_, err = NewPipelineFromConfig(context.Background(), config.AgentConfig{Provider: "nope"})
	require.Error(t, err)
}
