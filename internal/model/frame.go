package model

import (
	"encoding/json"
	"fmt"

	"cipherchat/internal/conversation"
)

// Frame types exchanged over the relay websocket. One frame = one JSON object.
const (
	FrameSendMessage     = "sendMessage"
	FrameInitialMessages = "initialMessages"
	FrameNewMessage      = "newMessage"
	FrameMessageAck      = "messageAck"
)

type (
	Frame struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}

	// SendMessagePayload is the client-to-relay send request.
	SendMessagePayload struct {
		Message     Envelope `json:"message"`
		RecipientID string   `json:"recipientId"`
	}

	// AckPayload confirms that the relay accepted an envelope into history.
	AckPayload struct {
		ID             string          `json:"id"`
		ConversationID conversation.ID `json:"conversationId"`
		Status         Status          `json:"status"`
	}

	// InitialMessages is pushed once per connection, keyed by conversation.
	InitialMessages map[conversation.ID][]Envelope
)

func NewFrame(frameType string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", frameType, err)
	}
	return Frame{Type: frameType, Payload: data}, nil
}
