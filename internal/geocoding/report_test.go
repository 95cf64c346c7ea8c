package geocoding

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleProgress() *Progress {
	return &Progress{
		RunID:     "run-1",
		Total:     3,
		Processed: 2,
		Succeeded: 1,
		Skipped:   1,
		Failed:    1,
		Failures:  []RowFailure{{Key: 3, Query: "2505 Atlantic Blvd", Reason: "not_found"}},
	}
}

func TestReport_Text(t *testing.T) {
	r := NewReport("innout", "test", sampleProgress(), nil)

	var buf bytes.Buffer
	require.NoError(t, r.Format(&buf, FormatText))
	assert.Equal(t, "Geocoded 1 rows\n"+
		"processed: 2  succeeded: 1  skipped: 1  failed: 1\n"+
		"The following rows failed to geocode:\n"+
		"3: 2505 Atlantic Blvd (not_found)\n", buf.String())
}

func TestReport_TextHalt(t *testing.T) {
	halt := &HaltError{Key: 4, Query: "q", Err: errors.New("auth rejected")}
	r := NewReport("innout", "googlev3", sampleProgress(), halt)
	require.NotNil(t, r.Halt)

	var buf bytes.Buffer
	require.NoError(t, r.Format(&buf, ""))
	assert.Contains(t, buf.String(), "Stopped at row 4: auth rejected\n")
	assert.Contains(t, buf.String(), "run again to resume")
}

func TestReport_JSON(t *testing.T) {
	r := NewReport("innout", "test", sampleProgress(), nil)

	var buf bytes.Buffer
	require.NoError(t, r.Format(&buf, FormatJSON))
	assert.JSONEq(t, `{
		"table": "innout",
		"provider": "test",
		"run_id": "run-1",
		"total": 3,
		"processed": 2,
		"succeeded": 1,
		"skipped": 1,
		"failed": 1,
		"failures": [{"key": 3, "query": "2505 Atlantic Blvd", "reason": "not_found"}]
	}`, buf.String())
}

func TestReport_YAML(t *testing.T) {
	halt := &HaltError{Key: "abc", Err: context.Canceled}
	r := NewReport("innout", "test", sampleProgress(), halt)

	var buf bytes.Buffer
	require.NoError(t, r.Format(&buf, FormatYAML))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "innout", got["table"])
	assert.Equal(t, 2, got["processed"])
	haltOut, ok := got["halt"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc", haltOut["key"])
	assert.Equal(t, "context canceled", haltOut["error"])
}

func TestReport_UnknownFormat(t *testing.T) {
	r := NewReport("t", "p", nil, nil)
	err := r.Format(&bytes.Buffer{}, "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "xml"`)
}

func TestReport_ConfigErrorHasNoHalt(t *testing.T) {
	r := NewReport("t", "p", &Progress{}, &ConfigError{Msg: "bad"})
	assert.Nil(t, r.Halt)
}
