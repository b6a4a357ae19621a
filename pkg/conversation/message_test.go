package conversation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_DecodesLegacyTypeKey(t *testing.T) {
	payload := `[
		{"type": "user", "content": "prior", "timestamp": "2024-05-01T10:00:00.123456"},
		{"type": "ai", "content": "reply"},
		{"role": "assistant", "content": "new style"}
	]`

	var msgs []Message
	require.NoError(t, json.Unmarshal([]byte(payload), &msgs))
	require.Len(t, msgs, 3)

	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "2024-05-01T10:00:00.123456", msgs[0].Timestamp)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, RoleAssistant, msgs[2].Role)
}

func TestMessage_RoleWinsOverType(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","type":"ai","content":"x"}`), &m))
	assert.Equal(t, RoleUser, m.Role)
}

func TestMessage_EncodesRoleKey(t *testing.T) {
	m := NewAssistantMessage("hello!", time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600)))
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":"hello!","timestamp":"2024-05-01T10:00:00.000Z"}`, string(b))
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("system").Valid())
	assert.False(t, Role("").Valid())
}

func TestKeepValid_DropsUnknownRoles(t *testing.T) {
	var msgs []Message
	require.NoError(t, json.Unmarshal([]byte(`[
		{"role": "system", "content": "be nice"},
		{"type": "user", "content": "hi"},
		{"content": "no role"},
		{"type": "ai", "content": "hello"}
	]`), &msgs))

	kept, dropped := KeepValid(msgs)
	assert.Equal(t, 2, dropped)
	require.Len(t, kept, 2)
	assert.Equal(t, RoleUser, kept[0].Role)
	assert.Equal(t, RoleAssistant, kept[1].Role)
	assert.Len(t, msgs, 4)
}
