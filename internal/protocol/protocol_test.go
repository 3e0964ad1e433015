package protocol

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := int64(1700000000)
	base := "https://files.example.com"
	req := &BulkRequest{
		Source: "docs",
		Files: []IndexFile{
			{Path: "a.md", MTime: 10, Size: 12, Kind: "text", Lines: []LineEntry{
				{Number: 1, Content: "hello"},
				{Number: 2, Content: "world"},
			}},
		},
		DeletePaths:      []string{"gone.txt"},
		BaseURL:          &base,
		ScanTimestamp:    &ts,
		IndexingFailures: []Failure{{Path: "bad.pdf", Error: "parse failed"}},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, req))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestDecodeRejectsNonGzip(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"source":"docs"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip")
}

func TestEnvelopeNameShape(t *testing.T) {
	name := EnvelopeName(time.Date(2024, 3, 5, 12, 30, 45, 0, time.UTC))
	assert.True(t, strings.HasPrefix(name, "req_20240305_123045_"))
	assert.True(t, strings.HasSuffix(name, ".gz"))
	assert.NotContains(t, name, "-")
	assert.NotEqual(t, name, EnvelopeName(time.Date(2024, 3, 5, 12, 30, 45, 0, time.UTC)))
}
