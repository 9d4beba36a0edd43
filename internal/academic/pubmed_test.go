package academic

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEsearchResponseDecoding(t *testing.T) {
	var parsed esearchResponse
	err := json.NewDecoder(strings.NewReader(`{"esearchresult":{"idlist":["111","222"]}}`)).Decode(&parsed)
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, parsed.ESearchResult.IDList)
}

func TestPubmedArticleSetDecoding(t *testing.T) {
	raw := `<PubmedArticleSet><PubmedArticle><MedlineCitation><PMID>555</PMID><Article><ArticleTitle>A Study</ArticleTitle><Abstract><AbstractText>Findings here.</AbstractText></Abstract><Journal><Title>J Med</Title></Journal></Article></MedlineCitation></PubmedArticle></PubmedArticleSet>`

	var set pubmedArticleSet
	err := xml.NewDecoder(strings.NewReader(raw)).Decode(&set)
	require.NoError(t, err)
	require.Len(t, set.Articles, 1)

	a := set.Articles[0]
	assert.Equal(t, "555", a.MedlineCitation.PMID)
	assert.Equal(t, "A Study", a.MedlineCitation.Article.ArticleTitle)
	assert.Equal(t, "Findings here.", a.MedlineCitation.Article.Abstract.AbstractText)
	assert.Equal(t, "J Med", a.MedlineCitation.Article.Journal.Title)
}

func TestPubmedArticleSetEmptyOnNoArticles(t *testing.T) {
	var set pubmedArticleSet
	err := xml.NewDecoder(strings.NewReader(`<PubmedArticleSet></PubmedArticleSet>`)).Decode(&set)
	require.NoError(t, err)
	assert.Empty(t, set.Articles)
}

func TestNewPubMedSetsTimeout(t *testing.T) {
	p := NewPubMed(5 * time.Second)
	assert.Equal(t, 5*time.Second, p.client.Timeout)
	assert.Equal(t, "pubmed", p.Name())
}
