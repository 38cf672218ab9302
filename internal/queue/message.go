package queue

import (
	"fmt"
	"strings"
)

// DispatchMessage is the broker payload handed to dispatch workers. It only
// references the message row; the worker loads the authoritative state from
// the record store before sending.
type DispatchMessage struct {
	MessageID     string `json:"messageId"`
	CorrelationID string `json:"correlationId,omitempty"`
	ProviderHint  string `json:"providerHint,omitempty"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("messageId is required")
	}
	return nil
}
