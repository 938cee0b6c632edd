package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"werewolf-be/internal/config"
	"werewolf-be/internal/service/game"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DEFAULT_DECISION_TIMEOUT = 8 * time.Second
	// 每个座位保留的决策理由条数
	memoryPerSeat = 5
)

// Pipeline 包装 Provider：限时调用、校验结果，失败时随机兜底，保证游戏不会因外部依赖卡住
type Pipeline struct {
	provider Provider
	timeout  time.Duration

	mu     sync.Mutex
	rng    *rand.Rand
	memory map[string]map[int][]string
}

type PipelineOption func(*Pipeline)

func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

func WithRand(rng *rand.Rand) PipelineOption {
	return func(p *Pipeline) { p.rng = rng }
}

func NewPipeline(provider Provider, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		provider: provider,
		timeout:  DEFAULT_DECISION_TIMEOUT,
		memory:   make(map[string]map[int][]string),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return p
}

// DecideNightAction 总是返回一个可提交的决策
func (p *Pipeline) DecideNightAction(ctx context.Context, view game.RoleView, candidates []int) Decision {
	req := p.request(KIND_NIGHT_ACTION, view, candidates)

	d, err := p.call(ctx, req, p.provider.ChooseNightAction)
	if err == nil {
		err = validateNightAction(view, candidates, d)
	}

	if err != nil {
		zap.L().Warn(
			"夜晚决策不可用，使用随机兜底",
			zap.String("room_id", view.RoomID),
			zap.Int("seat", view.Seat),
			zap.String("role", string(view.Role)),
			zap.Error(err),
		)
		d = p.fallbackNightAction(view, candidates)
	}

	p.remember(view, d)

	return d
}

// DecideVote 总是返回一个候选中的目标，没有候选时返回 NO_SEAT
func (p *Pipeline) DecideVote(ctx context.Context, view game.RoleView, candidates []int) Decision {
	req := p.request(KIND_VOTE, view, candidates)

	d, err := p.call(ctx, req, p.provider.ChooseVote)
	if err == nil {
		err = validateTarget(view, candidates, d.Target)
	}

	if err != nil {
		zap.L().Warn(
			"投票决策不可用，使用随机兜底",
			zap.String("room_id", view.RoomID),
			zap.Int("seat", view.Seat),
			zap.Error(err),
		)
		d = Decision{
			Target: p.pick(withoutSeats(candidates, view.Teammates)),
			Reason: "随机投票（兜底）",
		}
	}

	p.remember(view, d)

	return d
}

type callResult struct {
	d   Decision
	err error
}

// call 最多等待 p.timeout；Provider 不响应取消时直接放弃，迟到的结果被丢弃
func (p *Pipeline) call(
	ctx context.Context,
	req Request,
	choose func(context.Context, Request) (Decision, error),
) (Decision, error) {
	if len(req.Candidates) == 0 && req.View.Role != game.ROLE_WITCH {
		return Decision{}, errors.New("no candidates")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// 带缓冲，超时返回后 goroutine 仍能写入并退出
	resultCh := make(chan callResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- callResult{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()

		d, err := choose(ctx, req)
		resultCh <- callResult{d: d, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.d, res.err
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

var errTeammate = errors.New("werewolf chose a living teammate")

// validateTarget 目标必须在候选中，狼人不能选存活队友
func validateTarget(view game.RoleView, candidates []int, target int) error {
	if !slices.Contains(candidates, target) {
		return fmt.Errorf("%w: target %d not in candidates", ErrNoDecision, target)
	}

	if view.Role == game.ROLE_WEREWOLF && slices.Contains(view.Teammates, target) && slices.Contains(view.AlivePlayers, target) {
		return errTeammate
	}

	return nil
}

func validateNightAction(view game.RoleView, candidates []int, d Decision) error {
	if view.Role != game.ROLE_WITCH {
		if d.Action != ActionFor(view.Role) {
			return fmt.Errorf("%w: action %s for role %s", ErrNoDecision, d.Action, view.Role)
		}
		return validateTarget(view, candidates, d.Target)
	}

	w := view.Witch
	if w == nil {
		return fmt.Errorf("%w: witch view missing", ErrNoDecision)
	}

	switch d.Action {
	case game.ACTION_SAVE:
		if d.Target == game.NO_SEAT {
			return nil
		}
		if !w.HasSavePotion || d.Target != w.TonightKilled {
			return fmt.Errorf("%w: invalid save target %d", ErrNoDecision, d.Target)
		}
	case game.ACTION_POISON:
		if d.Target == game.NO_SEAT {
			return nil
		}
		if !w.HasPoisonPotion || !slices.Contains(candidates, d.Target) {
			return fmt.Errorf("%w: invalid poison target %d", ErrNoDecision, d.Target)
		}
	default:
		return fmt.Errorf("%w: action %s for witch", ErrNoDecision, d.Action)
	}

	return nil
}

// fallbackNightAction 狼人和预言家在合法目标中均匀随机；女巫按规则救人或放弃
func (p *Pipeline) fallbackNightAction(view game.RoleView, candidates []int) Decision {
	switch view.Role {
	case game.ROLE_WITCH:
		d := witchRule(view)
		d.Reason += "（兜底）"
		return d
	case game.ROLE_WEREWOLF:
		return Decision{
			Target: p.pick(withoutSeats(candidates, view.Teammates)),
			Action: game.ACTION_KILL,
			Reason: "随机击杀（兜底）",
		}
	}

	return Decision{
		Target: p.pick(candidates),
		Action: ActionFor(view.Role),
		Reason: "随机决策（兜底）",
	}
}

func (p *Pipeline) pick(candidates []int) int {
	if len(candidates) == 0 {
		return game.NO_SEAT
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return candidates[p.rng.IntN(len(candidates))]
}

func (p *Pipeline) request(kind Kind, view game.RoleView, candidates []int) Request {
	p.mu.Lock()
	memory := slices.Clone(p.memory[view.RoomID][view.Seat])
	p.mu.Unlock()

	return Request{
		Kind:       kind,
		View:       view,
		Candidates: slices.Clone(candidates),
		Memory:     memory,
	}
}

func (p *Pipeline) remember(view game.RoleView, d Decision) {
	if d.Reason == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	seats, ok := p.memory[view.RoomID]
	if !ok {
		seats = make(map[int][]string)
		p.memory[view.RoomID] = seats
	}

	entry := fmt.Sprintf("第%d轮：%s", view.Round, d.Reason)

	history := append(seats[view.Seat], entry)
	if len(history) > memoryPerSeat {
		history = history[len(history)-memoryPerSeat:]
	}
	seats[view.Seat] = history
}

// Memory 返回某个座位的决策记录
func (p *Pipeline) Memory(roomID string, seat int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.memory[roomID][seat])
}

// Forget 清除房间的决策记录，房间删除或重开时调用
func (p *Pipeline) Forget(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.memory, roomID)
}

// NewPipelineFromConfig 未配置大模型时只使用规则决策
func NewPipelineFromConfig(ctx context.Context, cfg config.AgentConfig) (*Pipeline, error) {
	llm, err := NewModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var opts []PipelineOption
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}

	if llm == nil {
		zap.L().Info("未配置大模型，使用规则决策")
		return NewPipeline(NewRuleProvider(nil), opts...), nil
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1))
	}

	zap.L().Info(
		"使用大模型决策",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)

	return NewPipeline(
		NewLLMProvider(llm, limiter, llms.WithTemperature(cfg.Temperature)),
		opts...,
	), nil
}
