package game

import (
	"encoding/json"

	"go.uber.org/zap"
)

// 请求类型
const (
	REQ_VOTE            = "Vote"
	REQ_SPEECH          = "Speech"
	REQ_NIGHT_ACTION    = "NightAction"
	REQ_ADVANCE_SPEAKER = "AdvanceSpeaker"
)

type RequestWrapper struct {
	ReqType string          `json:"request_type"`
	Data    json.RawMessage `json:"data"`
}

func WrapRequest(reqType string, data any) RequestWrapper {
	return RequestWrapper{
		ReqType: reqType,
		Data:    mustMarshal(data),
	}
}

func tryUnwrap[T any](wrapper RequestWrapper, reqType string) *T {
	if wrapper.ReqType != reqType {
		return nil
	}

	var req T

	if len(wrapper.Data) == 0 {
		return &req
	}

	if err := json.Unmarshal(wrapper.Data, &req); err != nil {
		zap.L().Error(
			"Failed to unwrap request",
			zap.String("request_type", reqType),
			zap.Error(err),
			zap.Any("wrapper", wrapper),
		)
		return nil
	}

	return &req
}

func TryUnwrapVoteRequest(wrapper RequestWrapper) *VoteRequest {
	return tryUnwrap[VoteRequest](wrapper, REQ_VOTE)
}

func TryUnwrapSpeechRequest(wrapper RequestWrapper) *SpeechRequest {
	return tryUnwrap[SpeechRequest](wrapper, REQ_SPEECH)
}

func TryUnwrapNightActionRequest(wrapper RequestWrapper) *NightActionRequest {
	return tryUnwrap[NightActionRequest](wrapper, REQ_NIGHT_ACTION)
}

func TryUnwrapAdvanceSpeakerRequest(wrapper RequestWrapper) *AdvanceSpeakerRequest {
	return tryUnwrap[AdvanceSpeakerRequest](wrapper, REQ_ADVANCE_SPEAKER)
}
