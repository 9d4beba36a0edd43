package academic

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHALResponseDecoding(t *testing.T) {
	raw := `{"response":{"docs":[{"title_s":["A Thesis"],"abstract_s":["Summary text"],"uri_s":["https://hal.science/hal-123"],"journalTitle_s":["Revue X"]}]}}`

	var parsed halResponse
	err := json.NewDecoder(strings.NewReader(raw)).Decode(&parsed)
	require.NoError(t, err)
	require.Len(t, parsed.Response.Docs, 1)
	assert.Equal(t, "A Thesis", first(parsed.Response.Docs[0].TitleS))
	assert.Equal(t, "https://hal.science/hal-123", first(parsed.Response.Docs[0].URIS))
}

func TestFirstReturnsEmptyOnEmptySlice(t *testing.T) {
	assert.Equal(t, "", first(nil))
	assert.Equal(t, "", first([]string{}))
}

func TestFirstReturnsFirstElement(t *testing.T) {
	assert.Equal(t, "a", first([]string{"a", "b"}))
}

func TestNewHALSetsTimeout(t *testing.T) {
	h := NewHAL(2 * time.Second)
	assert.Equal(t, 2*time.Second, h.client.Timeout)
	assert.Equal(t, "hal", h.Name())
}
