package dto

// ActionResult 是所有写操作的统一返回，失败时 Message 说明原因
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	err error
}

func Ok(message string, data any) ActionResult {
	return ActionResult{Success: true, Message: message, Data: data}
}

func Fail(err error) ActionResult {
	return ActionResult{Success: false, Message: err.Error(), err: err}
}

// Err 返回失败原因，传输层据此决定状态码
func (ar ActionResult) Err() error {
	return ar.err
}

type SpeechRequest struct {
	Seat int    `json:"seat"`
	Text string `json:"text"`
}

type VoteRequest struct {
	VoterSeat  int `json:"voterSeat"`
	TargetSeat int `json:"targetSeat"`
}

type NightActionRequest struct {
	PlayerSeat int    `json:"playerSeat"`
	Role       string `json:"role"`
	ActionType string `json:"actionType"`
	// 0 或缺省表示放弃行动
	TargetSeat int `json:"targetSeat"`
}

type AgentVoteRequest struct {
	Seat int `json:"seat"`
}

type AgentActionRequest struct {
	Seat int    `json:"seat"`
	Role string `json:"role"`
	// 为空时使用除自己外的所有存活玩家
	AvailableTargets []int `json:"availableTargets,omitempty"`
}

type AgentDecisionResponse struct {
	Seat       int    `json:"seat"`
	ActionType string `json:"actionType,omitempty"`
	TargetSeat int    `json:"targetSeat"`
	Reason     string `json:"reason"`
	// 提交到状态机后的结果
	Result any `json:"result,omitempty"`
}
