package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"werewolf-be/internal/config"
	"werewolf-be/internal/service/game"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const llmSystemPrompt = "你是狼人杀游戏的 AI 玩家，需要根据角色和游戏状态做出合理决策。只返回 JSON 格式结果。"

const gameRules = `【游戏规则】
- 狼人阵营：狼人每晚选择一名玩家击杀
- 神职阵营：
  * 预言家：每晚查验一名玩家的身份
  * 女巫：有一瓶解药（救被狼人杀的人）和一瓶毒药（毒死一人），每晚只能行动一次
  * 猎人：夜晚不行动
- 平民阵营：村民，晚上不行动
- 投票规则：白天所有人投票，票数最多者出局`

// NewModel 按配置构造大模型客户端，Provider 为空时返回 nil
func NewModel(ctx context.Context, cfg config.AgentConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		return openai.New(opts...)
	case "openai-compatible":
		if cfg.BaseURL == "" {
			return nil, errors.New("base_url is required for openai-compatible provider")
		}
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(cfg.BaseURL),
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		return openai.New(opts...)
	case "claude":
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithToken(cfg.APIKey))
		}
		return anthropic.New(opts...)
	case "gemini":
		opts := []googleai.Option{googleai.WithDefaultModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, googleai.WithAPIKey(cfg.APIKey))
		}
		return googleai.New(ctx, opts...)
	case "ollama":
		return ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.OllamaURL))
	}

	return nil, fmt.Errorf("unknown agent provider %q", cfg.Provider)
}

// LLMProvider 通过大模型做决策，调用频率受限流器控制
type LLMProvider struct {
	llm      llms.Model
	limiter  *rate.Limiter
	callOpts []llms.CallOption
}

func NewLLMProvider(llm llms.Model, limiter *rate.Limiter, callOpts ...llms.CallOption) *LLMProvider {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &LLMProvider{
		llm:      llm,
		limiter:  limiter,
		callOpts: callOpts,
	}
}

func (lp *LLMProvider) ChooseNightAction(ctx context.Context, req Request) (Decision, error) {
	d, err := lp.decide(ctx, req)
	if err != nil {
		return Decision{}, err
	}

	if req.View.Role == game.ROLE_WITCH {
		return witchFromTarget(req.View, d), nil
	}

	d.Action = ActionFor(req.View.Role)

	return d, nil
}

func (lp *LLMProvider) ChooseVote(ctx context.Context, req Request) (Decision, error) {
	return lp.decide(ctx, req)
}

// witchFromTarget 把模型选出的座位翻译成女巫的具体行动
// 选中今晚被刀的人视为救人，选中其他人视为下毒，药水不足时放弃
func witchFromTarget(view game.RoleView, d Decision) Decision {
	w := view.Witch
	if w == nil || d.Target == game.NO_SEAT {
		return Decision{Target: game.NO_SEAT, Action: game.ACTION_SAVE, Reason: d.Reason}
	}

	if d.Target == w.TonightKilled {
		if w.HasSavePotion {
			return Decision{Target: d.Target, Action: game.ACTION_SAVE, Reason: d.Reason}
		}
		return Decision{Target: game.NO_SEAT, Action: game.ACTION_SAVE, Reason: d.Reason}
	}

	if w.HasPoisonPotion {
		return Decision{Target: d.Target, Action: game.ACTION_POISON, Reason: d.Reason}
	}

	return Decision{Target: game.NO_SEAT, Action: game.ACTION_POISON, Reason: d.Reason}
}

func (lp *LLMProvider) decide(ctx context.Context, req Request) (Decision, error) {
	if err := lp.limiter.Wait(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit: %w", err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, llmSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildPrompt(req)),
	}

	resp, err := lp.llm.GenerateContent(ctx, messages, lp.callOpts...)
	if err != nil {
		return Decision{}, err
	}
	if len(resp.Choices) == 0 {
		return Decision{}, ErrNoDecision
	}

	d, err := parseDecision(resp.Choices[0].Content)
	if err != nil {
		return Decision{}, err
	}

	zap.L().Debug(
		"大模型决策",
		zap.String("room_id", req.View.RoomID),
		zap.Int("seat", req.View.Seat),
		zap.String("kind", string(req.Kind)),
		zap.Int("target", d.Target),
		zap.String("reason", d.Reason),
	)

	return d, nil
}

type llmAnswer struct {
	TargetSeat *int   `json:"targetSeat"`
	Reason     string `json:"reason"`
}

// parseDecision 解析模型返回的 JSON，容忍 markdown 代码块和前后多余文字
func parseDecision(content string) (Decision, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Decision{}, fmt.Errorf("%w: %q", ErrNoDecision, content)
	}

	var ans llmAnswer
	if err := json.Unmarshal([]byte(content[start:end+1]), &ans); err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrNoDecision, err)
	}

	d := Decision{Target: game.NO_SEAT, Reason: ans.Reason}
	if ans.TargetSeat != nil {
		d.Target = *ans.TargetSeat
	}

	return d, nil
}

func joinSeats(seats []int) string {
	if len(seats) == 0 {
		return "无"
	}

	parts := make([]string, 0, len(seats))
	for _, s := range seats {
		parts = append(parts, fmt.Sprintf("%d", s))
	}

	return strings.Join(parts, ", ")
}

func buildPrompt(req Request) string {
	view := req.View

	var b strings.Builder

	b.WriteString("你是一个狼人杀游戏的玩家。\n\n")
	b.WriteString(gameRules)
	b.WriteString("\n\n【你的信息】\n")
	fmt.Fprintf(&b, "- 角色：%s\n- 座位号：%d\n", view.Role, view.Seat)

	b.WriteString("\n【游戏上下文】\n")
	fmt.Fprintf(&b, "当前轮次：第 %d 轮\n", view.Round)
	fmt.Fprintf(&b, "存活玩家：%s\n", joinSeats(view.AlivePlayers))
	if view.LastDeadSeat != game.NO_SEAT {
		fmt.Fprintf(&b, "最近死亡：%d号\n", view.LastDeadSeat)
	}

	switch view.Role {
	case game.ROLE_WEREWOLF:
		fmt.Fprintf(&b, "狼人队友：%s\n", joinSeats(view.Teammates))
	case game.ROLE_SEER:
		if len(view.SeerChecks) == 0 {
			b.WriteString("查验记录：无\n")
		}
		for _, c := range view.SeerChecks {
			fmt.Fprintf(&b, "第%d晚查了%d号，结果是%s\n", c.Round, c.Seat, c.Result)
		}
	case game.ROLE_WITCH:
		if w := view.Witch; w != nil {
			fmt.Fprintf(&b, "解药：%s，毒药：%s\n", potionState(w.HasSavePotion), potionState(w.HasPoisonPotion))
			if w.TonightKilled != game.NO_SEAT {
				fmt.Fprintf(&b, "今晚被狼人击杀：%d号（选择该座位即为救人，选择其他座位即为下毒）\n", w.TonightKilled)
			}
		}
	}

	if len(view.LastVotes) > 0 {
		b.WriteString("上一轮投票：")
		votes := make([]string, 0, len(view.LastVotes))
		for _, v := range view.LastVotes {
			votes = append(votes, fmt.Sprintf("%d号投给%d号", v.Voter, v.Target))
		}
		b.WriteString(strings.Join(votes, "，"))
		b.WriteString("\n")
	}

	if len(view.RecentSpeeches) > 0 {
		b.WriteString("\n【历史发言】\n")
		for _, s := range view.RecentSpeeches {
			fmt.Fprintf(&b, "[Round %d] %d号：%s\n", s.Round, s.Seat, s.Text)
		}
	}

	if len(req.Memory) > 0 {
		b.WriteString("\n【你之前的决策理由】\n")
		for _, m := range req.Memory {
			b.WriteString("- " + m + "\n")
		}
	}

	candidates := slices.Clone(req.Candidates)
	slices.Sort(candidates)

	b.WriteString("\n【当前任务】\n")
	fmt.Fprintf(&b, "决策类型：%s\n可选目标：%s\n", req.Kind, joinSeats(candidates))
	b.WriteString(`
请根据你的角色视角和游戏规则，做出合理的决策。
直接返回 JSON 格式结果：
{"targetSeat": 目标座位号数字或 null, "reason": "决策原因简短描述"}`)

	return b.String()
}

func potionState(has bool) string {
	if has {
		return "有"
	}

	return "已使用"
}
