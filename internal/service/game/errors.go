package game

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest 覆盖所有非法输入：座位不存在、死亡玩家、阶段不对、轮次不对、药水已用等
// 返回该错误时状态保持不变（夜晚超时跳过除外）
var ErrInvalidRequest = errors.New("invalid request")

var ErrUnknownMode = errors.New("unsupported game mode")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
