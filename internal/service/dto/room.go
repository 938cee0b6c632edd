package dto

type CreateRoomRequest struct {
	Mode      string `json:"mode"`
	SeatCount int    `json:"seatCount"`
}

type CreateRoomResponse struct {
	RoomID    string `json:"roomId"`
	Mode      string `json:"mode"`
	SeatCount int    `json:"seatCount"`
}

type AssignRolesRequest struct {
	// 为空时使用房间已有的设置或默认值
	SeatCount int    `json:"seatCount"`
	Mode      string `json:"mode"`
	// 座位号 -> 角色名，用于调试和演示
	PinnedRoles map[int]string `json:"pinnedRoles,omitempty"`
}

type AssignRolesResponse struct {
	RoomID      string         `json:"roomId"`
	RolesBySeat map[int]string `json:"rolesBySeat"`
}

type AdvancePhaseResponse struct {
	Phase           string `json:"phase"`
	DurationSeconds int    `json:"durationSeconds"`
}

type RoomHealthResponse struct {
	RoomID string `json:"roomId"`
	Exists bool   `json:"exists"`
	Phase  string `json:"phase,omitempty"`
}
