package controllog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEmitsOneJSONObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	require.NoError(t, w.Write(Entry{T: 1, Type: "trigger", Payload: TriggerPayload{T: 10, ID: 1, Rising: true}}))
	require.NoError(t, w.Write(Entry{T: 2, Type: "fatal", Payload: map[string]string{"error": "boom"}}))

	scanner := bufio.NewScanner(&buf)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.EqualValues(t, 1, first.T)
	assert.Equal(t, "trigger", first.Type)
}

func TestWriteDefaultsTimestampWhenZero(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.Write(Entry{Type: "parameters", Payload: nil}))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.NotZero(t, decoded["t"])
}

func TestTriggerHelperShapesPayload(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.Trigger(3, 42, 99, false))

	var decoded struct {
		Type    string         `json:"type"`
		Payload TriggerPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "trigger", decoded.Type)
	assert.EqualValues(t, 3, decoded.Payload.ID)
	assert.EqualValues(t, 42, decoded.Payload.T)
	assert.EqualValues(t, 99, decoded.Payload.SystemTimestamp)
	assert.False(t, decoded.Payload.Rising)
}

func TestFatalHelperEmbedsErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.Fatal(errors.New("transfer failed")))

	var decoded struct {
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "transfer failed", decoded.Payload["error"])
}
