package agent

import (
	"context"
	"errors"

	"werewolf-be/internal/service/game"
)

type Kind string

const (
	KIND_NIGHT_ACTION Kind = "night_action"
	KIND_VOTE         Kind = "vote"
)

var ErrNoDecision = errors.New("provider returned no usable decision")

// Request 是交给决策系统的输入，View 已按身份过滤
type Request struct {
	Kind       Kind
	View       game.RoleView
	Candidates []int
	// 该座位最近几次的决策理由
	Memory []string
}

// Decision 是决策结果，Target 为 NO_SEAT 表示不行动
// Action 只对女巫有意义，其余角色由调用方按身份推断
type Decision struct {
	Target int             `json:"targetSeat"`
	Action game.ActionType `json:"action,omitempty"`
	Reason string          `json:"reason"`
}

// Provider 为电脑控制的座位选择目标
type Provider interface {
	ChooseNightAction(ctx context.Context, req Request) (Decision, error)
	ChooseVote(ctx context.Context, req Request) (Decision, error)
}

// ActionFor 返回某个身份在夜晚默认的行动类型
func ActionFor(role game.Role) game.ActionType {
	switch role {
	case game.ROLE_WEREWOLF:
		return game.ACTION_KILL
	case game.ROLE_SEER:
		return game.ACTION_CHECK
	case game.ROLE_WITCH:
		return game.ACTION_SAVE
	}

	return ""
}
