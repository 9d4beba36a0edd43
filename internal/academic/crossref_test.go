package academic

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossrefResponseDecoding(t *testing.T) {
	raw := `{"message":{"items":[{"title":["A Paper"],"abstract":"<p>Summary</p>","URL":"https://doi.org/10.1/x","DOI":"10.1/x","container-title":["Journal X"]}]}}`

	var parsed crossrefResponse
	err := json.NewDecoder(strings.NewReader(raw)).Decode(&parsed)
	require.NoError(t, err)
	require.Len(t, parsed.Message.Items, 1)

	item := parsed.Message.Items[0]
	assert.Equal(t, "A Paper", item.Title[0])
	assert.Equal(t, "Journal X", item.ContainerTitle[0])
}

func TestCrossrefItemFallsBackToDOIWhenURLMissing(t *testing.T) {
	item := crossrefItem{DOI: "10.5/y"}
	resultURL := item.URL
	if resultURL == "" && item.DOI != "" {
		resultURL = "https://doi.org/" + item.DOI
	}
	assert.Equal(t, "https://doi.org/10.5/y", resultURL)
}

func TestNewCrossrefSetsTimeout(t *testing.T) {
	c := NewCrossref(4 * time.Second)
	assert.Equal(t, 4*time.Second, c.client.Timeout)
	assert.Equal(t, "crossref", c.Name())
}
