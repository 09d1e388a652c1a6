// Package a2a implements the Agent-to-Agent (A2A) message protocol used
// between Maestro agent services: Tasks, Messages, Parts and task state
// transitions over HTTP+JSON.
package a2a

import (
	"strings"
	"time"
)

const (
	ProtocolVersion = "1.0"
)

// ============================================================================
// TASK - Unit of Work
// ============================================================================

// Task represents a unit of work exchanged between agents.
type Task struct {
	ID        string       `json:"id"`
	Status    TaskStatus   `json:"status"`
	History   []Message    `json:"history,omitempty"`
	SessionID string       `json:"sessionId,omitempty"`
	Metadata  TaskMetadata `json:"metadata,omitempty"`
}

// TaskStatus represents the current status of a task.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input_required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
)

// Terminal reports whether the state is a final state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed:
		return true
	}
	return false
}

// TaskMetadata carries additional task information.
type TaskMetadata map[string]interface{}

// ============================================================================
// MESSAGE - Conversation Messages
// ============================================================================

// Message represents a single message in a task conversation.
type Message struct {
	Role      MessageRole            `json:"role"`
	Parts     []Part                 `json:"parts"`
	MessageID string                 `json:"messageId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// MessageRole represents the sender of a message.
type MessageRole string

const (
	MessageRoleUser   MessageRole = "user"
	MessageRoleAgent  MessageRole = "agent"
	MessageRoleSystem MessageRole = "system"
)

// ============================================================================
// PART - Message Content Parts (tagged union)
// ============================================================================

// Part is a tagged union of message content kinds. Maestro emits and expects
// only text parts; file and data parts are preserved for interoperability.
type Part struct {
	Type PartType `json:"type"`

	Text string `json:"text,omitempty"`

	File *FilePart `json:"file,omitempty"`

	Data     interface{} `json:"data,omitempty"`
	DataType string      `json:"dataType,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PartType discriminates Part content.
type PartType string

const (
	PartTypeText PartType = "text"
	PartTypeFile PartType = "file"
	PartTypeData PartType = "data"
)

// FilePart references a file by inline bytes or URI.
type FilePart struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    []byte `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// ============================================================================
// RPC PARAMETERS
// ============================================================================

// SendTaskParams carries a message for tasks/send.
type SendTaskParams struct {
	TaskID    string  `json:"taskId"`
	Message   Message `json:"message"`
	SessionID string  `json:"sessionId,omitempty"`
}

// GetTaskParams identifies a task for tasks/get.
type GetTaskParams struct {
	TaskID        string `json:"taskId"`
	HistoryLength int    `json:"historyLength,omitempty"`
}

// ============================================================================
// HELPERS
// ============================================================================

// NewTextMessage builds a single-text-part message.
func NewTextMessage(role MessageRole, messageID, text string) Message {
	return Message{
		Role:      role,
		MessageID: messageID,
		Parts:     []Part{{Type: PartTypeText, Text: text}},
	}
}

// TextOf concatenates all text parts of a message.
func TextOf(msg *Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range msg.Parts {
		if part.Type != PartTypeText {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// FirstText returns the first text part of a message, if any.
func FirstText(msg *Message) (string, bool) {
	if msg == nil {
		return "", false
	}
	for _, part := range msg.Parts {
		if part.Type == PartTypeText {
			return part.Text, true
		}
	}
	return "", false
}
