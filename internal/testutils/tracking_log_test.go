package testutils

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTrackingLog(t *testing.T) {
	opts := DefaultGeneratorOptions()
	opts.Events = 100
	opts.NoiseEvery = 10

	var buf bytes.Buffer
	lines, err := GenerateTrackingLog(&buf, opts)
	require.NoError(t, err)
	assert.Equal(t, 110, lines)

	serverEvents := 0
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var event map[string]any
		if json.Unmarshal(scanner.Bytes(), &event) != nil {
			continue
		}
		if event["event_source"] == "server" {
			serverEvents++
			assert.Equal(t, "problem_check", event["event_type"])
			assert.NotEmpty(t, event["username"])
		}
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, opts.Events, serverEvents)
}

func TestGenerateTrackingLog_Deterministic(t *testing.T) {
	opts := DefaultGeneratorOptions()
	opts.Events = 50

	var first, second bytes.Buffer
	_, err := GenerateTrackingLog(&first, opts)
	require.NoError(t, err)
	_, err = GenerateTrackingLog(&second, opts)
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())
}

func TestSampleMetadata(t *testing.T) {
	data, err := SampleMetadata(3)
	require.NoError(t, err)

	var entries map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Len(t, entries, 3)
	for _, entry := range entries {
		assert.Equal(t, "numericalresponse", entry["response_type"])
	}
}
