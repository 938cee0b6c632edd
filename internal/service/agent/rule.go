package agent

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"

	"werewolf-be/internal/service/game"
)

// RuleProvider 是不依赖外部服务的规则决策
type RuleProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRuleProvider(rng *rand.Rand) *RuleProvider {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &RuleProvider{rng: rng}
}

func (rp *RuleProvider) pick(candidates []int) int {
	if len(candidates) == 0 {
		return game.NO_SEAT
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	return candidates[rp.rng.IntN(len(candidates))]
}

func (rp *RuleProvider) ChooseNightAction(ctx context.Context, req Request) (Decision, error) {
	view := req.View

	switch view.Role {
	case game.ROLE_WEREWOLF:
		return Decision{
			Target: rp.pick(withoutSeats(req.Candidates, view.Teammates)),
			Action: game.ACTION_KILL,
			Reason: "随机击杀非队友",
		}, nil

	case game.ROLE_SEER:
		checked := make([]int, 0, len(view.SeerChecks))
		for _, c := range view.SeerChecks {
			checked = append(checked, c.Seat)
		}

		return Decision{
			Target: rp.pick(withoutSeats(req.Candidates, checked)),
			Action: game.ACTION_CHECK,
			Reason: "查验未知身份",
		}, nil

	case game.ROLE_WITCH:
		return witchRule(view), nil
	}

	return Decision{Reason: "该身份夜晚不行动"}, nil
}

// witchRule 有解药且今晚有人被刀时救人，否则不用药
func witchRule(view game.RoleView) Decision {
	if w := view.Witch; w != nil && w.HasSavePotion && w.TonightKilled != game.NO_SEAT {
		return Decision{
			Target: w.TonightKilled,
			Action: game.ACTION_SAVE,
			Reason: "解药救人",
		}
	}

	return Decision{
		Target: game.NO_SEAT,
		Action: game.ACTION_SAVE,
		Reason: "不使用药水",
	}
}

func (rp *RuleProvider) ChooseVote(ctx context.Context, req Request) (Decision, error) {
	view := req.View

	switch view.Role {
	case game.ROLE_SEER:
		// 优先投查到的狼人
		for _, c := range view.SeerChecks {
			if c.Result == game.ROLE_WEREWOLF && slices.Contains(req.Candidates, c.Seat) {
				return Decision{Target: c.Seat, Reason: "投已知狼人"}, nil
			}
		}

	case game.ROLE_WEREWOLF:
		return Decision{
			Target: rp.pick(withoutSeats(req.Candidates, view.Teammates)),
			Reason: "随机投票非队友",
		}, nil
	}

	return Decision{Target: rp.pick(req.Candidates), Reason: "随机投票"}, nil
}

// withoutSeats 过滤掉指定座位，过滤后为空时返回原候选
func withoutSeats(candidates, excluded []int) []int {
	filtered := slices.DeleteFunc(slices.Clone(candidates), func(seat int) bool {
		return slices.Contains(excluded, seat)
	})

	if len(filtered) == 0 {
		return candidates
	}

	return filtered
}
