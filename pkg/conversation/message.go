package conversation

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// legacyRoleAI is what the history endpoint stores for assistant turns.
const legacyRoleAI = "ai"

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// TimestampFormat matches the millisecond precision browsers emit for ISO-8601.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Message is one utterance in the thread. Messages are values: the store
// never changes one after it has been appended.
type Message struct {
	Role      Role   `json:"role" yaml:"role"`
	Content   string `json:"content" yaml:"content"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

func NewMessage(role Role, content string, t time.Time) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: FormatTimestamp(t),
	}
}

func NewUserMessage(content string, t time.Time) Message {
	return NewMessage(RoleUser, content, t)
}

func NewAssistantMessage(content string, t time.Time) Message {
	return NewMessage(RoleAssistant, content, t)
}

// KeepValid returns the messages whose role is user or assistant, plus the
// number it dropped. msgs itself is not modified.
func KeepValid(msgs []Message) ([]Message, int) {
	ret := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role.Valid() {
			ret = append(ret, m)
		}
	}
	return ret, len(msgs) - len(ret)
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// wireMessage accepts both the current `role` key and the older `type` key,
// where assistant turns were recorded as "ai".
type wireMessage struct {
	Role      string `json:"role"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	role := w.Role
	if role == "" {
		role = w.Type
	}
	if role == legacyRoleAI {
		role = string(RoleAssistant)
	}

	*m = Message{
		Role:      Role(role),
		Content:   w.Content,
		Timestamp: w.Timestamp,
	}
	return nil
}
