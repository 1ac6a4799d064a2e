package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindEmbeddedJSON(t *testing.T) {
	v, ok := FindEmbeddedJSON(`Here's my decision:

{"action":"approve","confidence":0.9}

Let me know if you need anything else.`)
	assert.True(t, ok)
	m, ok := v.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "approve", m["action"])

	_, ok = FindEmbeddedJSON("no json here at all")
	assert.False(t, ok)
}

func TestExtractor_StringField(t *testing.T) {
	e := NewExtractor(0, 0)
	data := map[string]interface{}{"action": "reject", "confidence": 0.4}

	s, ok := e.StringField(context.Background(), ".action", data)
	assert.True(t, ok)
	assert.Equal(t, "reject", s)

	f, ok := e.Float64Field(context.Background(), ".confidence", data)
	assert.True(t, ok)
	assert.InDelta(t, 0.4, f, 0.0001)

	_, ok = e.StringField(context.Background(), ".missing", data)
	assert.False(t, ok)
}

func TestExtractor_Query_EmptyExpressionReturnsInput(t *testing.T) {
	e := NewExtractor(0, 0)
	data := map[string]interface{}{"action": "approve"}
	v, err := e.Query(context.Background(), "", data)
	assert.NoError(t, err)
	assert.Equal(t, data, v)
}

func TestExtractor_Query_InvalidExpressionErrors(t *testing.T) {
	e := NewExtractor(0, 0)
	_, err := e.Query(context.Background(), ".[", map[string]interface{}{})
	assert.Error(t, err)
}
