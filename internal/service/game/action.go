package game

type VoteRequest struct {
	VoterSeat  int `json:"voter_seat"`
	TargetSeat int `json:"target_seat"`
}

type VoteResponse struct {
	VoterSeat  int `json:"voter_seat"`
	TargetSeat int `json:"target_seat"`
}

type SpeechRequest struct {
	Seat int    `json:"seat"`
	Text string `json:"text"`
}

type SpeechResponse struct {
	Seat int    `json:"seat"`
	Text string `json:"text"`
}

type NightActionRequest struct {
	PlayerSeat int        `json:"player_seat"`
	Role       Role       `json:"role"`
	ActionType ActionType `json:"action_type"`
	// NO_SEAT 表示放弃行动
	TargetSeat int `json:"target_seat"`
}

type NightActionResponse struct {
	Action       ActionType `json:"action"`
	TargetSeat   int        `json:"target_seat"`
	Announcement string     `json:"announcement,omitempty"`
	// 狼人还有同伴未选择时为 true
	Pending bool `json:"pending,omitempty"`
}

type AdvanceSpeakerRequest struct{}

type AdvanceSpeakerResponse struct {
	// NO_SEAT 表示发言结束，已进入投票阶段
	CurrentSpeaker int   `json:"current_speaker"`
	Phase          Phase `json:"phase"`
}
