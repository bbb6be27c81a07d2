package chat

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/moodchat/client/internal/model/chat"
	"github.com/zhouzirui/moodchat/client/internal/service/gateway"
)

// NoResponseText resolves a placeholder whose backend call produced nothing.
const NoResponseText = "Error: No response from server"

func noResponse() chat.Resolution {
	return chat.Resolution{Text: NoResponseText, Kind: chat.KindText}
}

func errorText(err error) string {
	return "Error: " + err.Error()
}

// speechErrorText picks user copy by failure class.
func speechErrorText(err error) string {
	var statusErr *gateway.StatusError
	switch {
	case errors.Is(err, gateway.ErrAudioMissing):
		return "Error: Recording file not found"
	case errors.Is(err, gateway.ErrAudioEmpty):
		return "Error: Recording is empty"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Error: Server rejected the audio (status %d)", statusErr.Code)
	default:
		return errorText(err)
	}
}
