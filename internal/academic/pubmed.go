package academic

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ire/internal/ireerr"
	"ire/internal/search"
)

// PubMed searches the NCBI E-utilities API: esearch for PMIDs, then
// efetch for article XML (grounded on academia.py's search_pubmed /
// fetch_pubmed_details / parse_pubmed_xml).
type PubMed struct {
	client *http.Client
}

func NewPubMed(timeout time.Duration) *PubMed {
	return &PubMed{client: &http.Client{Timeout: timeout}}
}

func (p *PubMed) Name() string { return "pubmed" }

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				AbstractText string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title string `xml:"Title"`
			} `xml:"Journal"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

func (p *PubMed) Search(ctx context.Context, query string) ([]search.Result, error) {
	const base = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"

	searchURL := fmt.Sprintf("%sesearch.fcgi?db=pubmed&retmode=json&retmax=5&term=%s", base, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, ireerr.Transport("build pubmed esearch request", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ireerr.Transport("pubmed esearch", err)
	}
	defer resp.Body.Close()

	var parsed esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ireerr.Parse("decode pubmed esearch response", err)
	}
	if len(parsed.ESearchResult.IDList) == 0 {
		return nil, nil
	}

	fetchURL := fmt.Sprintf("%sefetch.fcgi?db=pubmed&retmode=xml&id=%s", base, strings.Join(parsed.ESearchResult.IDList, ","))
	fetchReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, ireerr.Transport("build pubmed efetch request", err)
	}
	fetchResp, err := p.client.Do(fetchReq)
	if err != nil {
		return nil, ireerr.Transport("pubmed efetch", err)
	}
	defer fetchResp.Body.Close()

	var set pubmedArticleSet
	if err := xml.NewDecoder(fetchResp.Body).Decode(&set); err != nil {
		return nil, ireerr.Parse("decode pubmed article xml", err)
	}

	out := make([]search.Result, 0, len(set.Articles))
	for _, a := range set.Articles {
		pmid := strings.TrimSpace(a.MedlineCitation.PMID)
		if pmid == "" {
			continue
		}
		out = append(out, search.Result{
			Title:   a.MedlineCitation.Article.ArticleTitle,
			URL:     fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", pmid),
			Snippet: a.MedlineCitation.Article.Abstract.AbstractText,
			Domain:  "pubmed.ncbi.nlm.nih.gov",
		})
	}
	return out, nil
}
