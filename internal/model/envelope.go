package model

import (
	"cipherchat/internal/conversation"
)

type (
	// Envelope is one transportable unit of encrypted conversation content.
	// Ciphertext is the only representation of the message that is ever
	// transmitted or stored; plaintext exists only inside a client process.
	Envelope struct {
		ID             string          `json:"id"`
		SenderID       string          `json:"senderId"`
		Ciphertext     string          `json:"ciphertext"`
		Timestamp      int64           `json:"timestamp"`
		Status         Status          `json:"status"`
		ConversationID conversation.ID `json:"conversationId"`
	}
)
