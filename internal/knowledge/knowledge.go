// Package knowledge is the engine's persistent vector store (spec
// §4.S): a durable SQLite table of previously-fetched sources backing
// an in-memory HNSW index, consulted by the SearchOrchestrator before
// any web search runs. Grounded on the teacher's own SQLite store
// (internal/store/store.go, embedding columns as BLOBs) and on the
// pure-Go HNSW wrapper in the corpus's Aman-CERP-amanmcp repo
// (internal/store/hnsw.go).
package knowledge

import (
	"bytes"
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	_ "github.com/mattn/go-sqlite3"

	"ire/internal/core"
	"ire/internal/ireerr"
)

// minContentLength is the floor below which a source is considered too
// thin to be worth persisting (spec §4.S).
const minContentLength = 100

// Embedder is the dependency Store uses to embed both new source
// content and incoming search queries.
type Embedder interface {
	Embed(ctx context.Context, text string) (core.Embedding, error)
}

// record is one knowledge-store row as held in SQLite.
type record struct {
	id            string
	url           string
	title         string
	content       string
	domain        string
	researchQuery string
	sessionID     string
	addedAt       time.Time
}

// Store is a durable, per-collection knowledge base backed by SQLite
// with an in-memory HNSW index for nearest-neighbor search. It
// satisfies internal/search.KnowledgeStore.
type Store struct {
	mu       sync.RWMutex
	db       *sql.DB
	index    *hnsw.Graph[string]
	embedder Embedder
}

// Open opens (or creates) the knowledge database for collection name
// under baseDir/{name}_knowledge_db, per spec §6's directory
// convention, and rebuilds the in-memory HNSW index from its contents.
func Open(baseDir, name string, embedder Embedder) (*Store, error) {
	dir := filepath.Join(baseDir, name+"_knowledge_db")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ireerr.Parse("create knowledge db directory", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "knowledge.db"))
	if err != nil {
		return nil, ireerr.Parse("open knowledge db", err)
	}

	store := &Store{db: db, embedder: embedder}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// ListCollections discovers every knowledge base under baseDir,
// stripping the "_knowledge_db" suffix (spec §6).
func ListCollections(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ireerr.Parse("list knowledge db directories", err)
	}
	const suffix = "_knowledge_db"
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n := e.Name()
		if len(n) > len(suffix) && n[len(n)-len(suffix):] == suffix {
			names = append(names, n[:len(n)-len(suffix)])
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		url TEXT,
		title TEXT,
		content TEXT,
		domain TEXT,
		research_query TEXT,
		session_id TEXT,
		added_at DATETIME,
		embedding BLOB
	);`)
	if err != nil {
		return ireerr.Parse("migrate knowledge db", err)
	}
	return nil
}

func (s *Store) rebuildIndex() error {
	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance

	rows, err := s.db.Query(`SELECT id, embedding FROM sources`)
	if err != nil {
		return ireerr.Parse("load knowledge db rows", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return ireerr.Parse("scan knowledge db row", err)
		}
		vec, err := deserializeEmbedding(blob)
		if err != nil {
			continue
		}
		graph.Add(hnsw.MakeNode(id, vec))
	}
	s.index = graph
	return nil
}

// Add stores results not already present (spec §4.S): content shorter
// than minContentLength is skipped, and a source_id hash of the URL (or
// title, if no URL) dedupes against prior additions.
func (s *Store) Add(ctx context.Context, results []core.SearchResult, query, sessionID string) error {
	for _, res := range results {
		content := res.Snippet
		if len(content) < minContentLength {
			continue
		}

		id := sourceID(res.URL, res.Title)
		exists, err := s.has(id)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		emb, err := s.embedder.Embed(ctx, content)
		if err != nil || len(emb) == 0 {
			continue
		}

		blob, err := serializeEmbedding(emb)
		if err != nil {
			continue
		}

		domain := res.Domain
		if domain == "" {
			domain = domainOf(res.URL)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO sources (id, url, title, content, domain, research_query, session_id, added_at, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, res.URL, res.Title, content, domain, query, sessionID, time.Now(), blob,
		)
		if err != nil {
			return ireerr.Parse("insert knowledge source", err)
		}

		s.mu.Lock()
		s.index.Add(hnsw.MakeNode(id, []float32(emb)))
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) has(id string) (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM sources WHERE id = ?`, id).Scan(&count); err != nil {
		return false, ireerr.Parse("check knowledge source existence", err)
	}
	return count > 0, nil
}

// Search embeds query and runs a nearest-neighbor lookup against the
// in-memory index, returning results whose derived similarity
// (1/(1+distance), per spec §4.S) is at least minSimilarity.
func (s *Store) Search(ctx context.Context, query string, n int, minSimilarity float64) ([]core.SearchResult, error) {
	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil || len(queryEmbedding) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	if s.index == nil || s.index.Len() == 0 {
		s.mu.RUnlock()
		return nil, nil
	}
	nodes := s.index.Search([]float32(queryEmbedding), n)
	s.mu.RUnlock()

	out := make([]core.SearchResult, 0, len(nodes))
	for _, node := range nodes {
		distance := s.index.Distance([]float32(queryEmbedding), node.Value)
		similarity := 1.0 / (1.0 + float64(distance))
		if similarity < minSimilarity {
			continue
		}
		rec, ok, err := s.lookup(ctx, node.Key)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		out = append(out, core.SearchResult{
			Title:      rec.title,
			URL:        rec.url,
			Snippet:    rec.content,
			Domain:     rec.domain,
			Similarity: similarity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

func (s *Store) lookup(ctx context.Context, id string) (record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, title, content, domain, research_query, session_id, added_at
		FROM sources WHERE id = ?`, id)

	var rec record
	if err := row.Scan(&rec.id, &rec.url, &rec.title, &rec.content, &rec.domain, &rec.researchQuery, &rec.sessionID, &rec.addedAt); err != nil {
		if err == sql.ErrNoRows {
			return record{}, false, nil
		}
		return record{}, false, ireerr.Parse("lookup knowledge source", err)
	}
	return rec, true, nil
}

// Cleanup deletes entries older than the given number of days,
// rebuilding the in-memory index afterward (spec §4.S's age-out).
func (s *Store) Cleanup(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE added_at < ?`, cutoff)
	if err != nil {
		return 0, ireerr.Parse("cleanup knowledge db", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if err := s.rebuildIndex(); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func sourceID(rawURL, title string) string {
	key := rawURL
	if key == "" {
		key = title
	}
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}

func serializeEmbedding(emb core.Embedding) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, v := range emb {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, ireerr.Parse("serialize embedding", err)
		}
	}
	return buf.Bytes(), nil
}

func deserializeEmbedding(data []byte) (core.Embedding, error) {
	const floatSize = 4
	if len(data)%floatSize != 0 {
		return nil, fmt.Errorf("knowledge: embedding blob has invalid length %d", len(data))
	}
	out := make(core.Embedding, len(data)/floatSize)
	reader := bytes.NewReader(data)
	for i := range out {
		if err := binary.Read(reader, binary.LittleEndian, &out[i]); err != nil {
			return nil, ireerr.Parse("deserialize embedding", err)
		}
	}
	return out, nil
}
