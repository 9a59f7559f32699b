package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	ragcontext "github.com/tuannvm/multiagent-rag/internal/context"
	"github.com/tuannvm/multiagent-rag/internal/embedding"
	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/ragerr"
)

// PGStore is the primary ticket store backend: Postgres with the pgvector
// extension for nearest-neighbor search and a tsvector column for
// full-text ranking, one table per Collection.
type PGStore struct {
	pool     *pgxpool.Pool
	embedder embedding.Embedder
	log      interface {
		Warnf(string, ...interface{})
		Errorf(string, ...interface{})
	}
}

// NewPGStore connects to dsn and registers the pgvector type on the pool.
func NewPGStore(ctx context.Context, dsn string, embedder embedding.Embedder) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Fatal, "store: parse dsn", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Fatal, "store: connect", err)
	}

	return &PGStore{pool: pool, embedder: embedder, log: logging.Named("store.postgres")}, nil
}

func (s *PGStore) table(c Collection) string {
	switch c {
	case Bugs:
		return "bugs"
	case Releases:
		return "releases"
	default:
		return string(c)
	}
}

func (s *PGStore) TestConnection(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// VectorSearch embeds queryText and requests the k nearest neighbors by
// cosine distance satisfying sim >= threshold. On any ANN-path error
// (missing extension, query failure) it degrades to the client-side
// fallback: fetch up to 3k candidates and score them in process.
func (s *PGStore) VectorSearch(ctx context.Context, collection Collection, queryText string, k int, threshold float64, filters Filters) ([]ragcontext.RetrievedContext, error) {
	queryVec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	rows, err := s.vectorSearchANN(ctx, collection, queryVec, k, threshold, filters)
	if err != nil {
		s.log.Warnf("store: ANN vector search unavailable for %s, falling back to client-side scoring: %v", collection, err)
		return s.vectorSearchClientSide(ctx, collection, queryVec, k, threshold, filters)
	}
	return rows, nil
}

func (s *PGStore) vectorSearchANN(ctx context.Context, collection Collection, queryVec embedding.Vector, k int, threshold float64, filters Filters) ([]ragcontext.RetrievedContext, error) {
	where, args := filterClause(filters, 3)
	query := fmt.Sprintf(`
		SELECT jira_id, key, project, priority, type, status, component, version,
		       reporter, assignee, created, title, description,
		       1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE true
		%s
		ORDER BY embedding <=> $1
		LIMIT $2`, s.table(collection), where)

	args = append([]interface{}{pgvector.NewVector(queryVec), k}, args...)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.UpstreamTransient, "store: ann query", err)
	}
	defer rows.Close()

	hits := make([]ragcontext.RawHit, 0, k)
	for rows.Next() {
		d, similarity, err := scanVectorRow(rows)
		if err != nil {
			return nil, err
		}
		if similarity < threshold {
			continue
		}
		hits = append(hits, ragcontext.RawHit{
			Content:  formatContent(d.Title, d.Description),
			Metadata: docMetadata(d),
			RawScore: similarity,
			Kind:     ragcontext.VectorHit,
		})
	}
	return ragcontext.Normalize(hits, fmt.Sprintf("vector_%s", collection)), rows.Err()
}

func (s *PGStore) vectorSearchClientSide(ctx context.Context, collection Collection, queryVec embedding.Vector, k int, threshold float64, filters Filters) ([]ragcontext.RetrievedContext, error) {
	where, args := filterClause(filters, 2)
	candidateLimit := k * 3
	query := fmt.Sprintf(`
		SELECT jira_id, key, project, priority, type, status, component, version,
		       reporter, assignee, created, title, description, embedding
		FROM %s
		WHERE true
		%s
		LIMIT $1`, s.table(collection), where)
	args = append([]interface{}{candidateLimit}, args...)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.UpstreamTransient, "store: client-side candidate fetch", err)
	}
	defer rows.Close()

	hits := make([]ragcontext.RawHit, 0, candidateLimit)
	for rows.Next() {
		var d Document
		var emb pgvector.Vector
		if err := rows.Scan(&d.JiraID, &d.Key, &d.Project, &d.Priority, &d.Type, &d.Status,
			&d.Component, &d.Version, &d.Reporter, &d.Assignee, &d.Created, &d.Title, &d.Description, &emb); err != nil {
			return nil, ragerr.Wrap(ragerr.UpstreamTransient, "store: scan candidate row", err)
		}
		sim := cosineSimilarity([]float32(queryVec), emb.Slice())
		if sim < threshold {
			continue
		}
		hits = append(hits, ragcontext.RawHit{
			Content:  formatContent(d.Title, d.Description),
			Metadata: docMetadata(d),
			RawScore: sim,
			Kind:     ragcontext.VectorHit,
		})
	}
	out := ragcontext.Normalize(hits, fmt.Sprintf("vector_%s", collection))
	return ragcontext.TopK(out, k), rows.Err()
}

// KeywordSearch rewrites a multi-word query into the store's boolean-AND
// form (websearch_to_tsquery) and ranks by ts_rank. On tsvector absence it
// falls back to a case-insensitive substring scan with a uniform score.
func (s *PGStore) KeywordSearch(ctx context.Context, collection Collection, queryText string, k int, filters Filters) ([]ragcontext.RetrievedContext, error) {
	where, args := filterClause(filters, 3)
	query := fmt.Sprintf(`
		SELECT jira_id, key, project, priority, type, status, component, version,
		       reporter, assignee, created, title, description,
		       ts_rank(content_tsvector, websearch_to_tsquery('english', $1)) AS rank
		FROM %s
		WHERE content_tsvector @@ websearch_to_tsquery('english', $1)
		%s
		ORDER BY rank DESC
		LIMIT $2`, s.table(collection), where)
	args = append([]interface{}{queryText, k}, args...)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		s.log.Warnf("store: tsvector keyword search unavailable for %s, falling back to substring scan: %v", collection, err)
		return s.keywordSearchSubstring(ctx, collection, queryText, k, filters)
	}
	defer rows.Close()

	hits := make([]ragcontext.RawHit, 0, k)
	for rows.Next() {
		d, rank, err := scanVectorRow(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, ragcontext.RawHit{
			Content:  formatContent(d.Title, d.Description),
			Metadata: docMetadata(d),
			RawScore: rank,
			Kind:     ragcontext.KeywordHit,
		})
	}
	return ragcontext.Normalize(hits, fmt.Sprintf("keyword_%s", collection)), rows.Err()
}

func (s *PGStore) keywordSearchSubstring(ctx context.Context, collection Collection, queryText string, k int, filters Filters) ([]ragcontext.RetrievedContext, error) {
	where, args := filterClause(filters, 3)
	query := fmt.Sprintf(`
		SELECT jira_id, key, project, priority, type, status, component, version,
		       reporter, assignee, created, title, description
		FROM %s
		WHERE (title ILIKE $1 OR description ILIKE $1)
		%s
		LIMIT $2`, s.table(collection), where)
	args = append([]interface{}{"%" + queryText + "%", k}, args...)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.UpstreamTransient, "store: substring fallback query", err)
	}
	defer rows.Close()

	hits := make([]ragcontext.RawHit, 0, k)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.JiraID, &d.Key, &d.Project, &d.Priority, &d.Type, &d.Status,
			&d.Component, &d.Version, &d.Reporter, &d.Assignee, &d.Created, &d.Title, &d.Description); err != nil {
			return nil, ragerr.Wrap(ragerr.UpstreamTransient, "store: scan substring row", err)
		}
		hits = append(hits, ragcontext.RawHit{
			Content:  formatContent(d.Title, d.Description),
			Metadata: docMetadata(d),
			RawScore: 0.5,
			Kind:     ragcontext.PrenormalizedHit,
		})
	}
	return ragcontext.Normalize(hits, fmt.Sprintf("keyword_%s", collection)), rows.Err()
}

// HybridSearch executes vector and keyword searches for up to 2k each and
// fuses them. A single failing sub-query does not fail the call; the
// surviving list is returned alone.
func (s *PGStore) HybridSearch(ctx context.Context, collection Collection, queryText string, k int, threshold, vectorWeight, keywordWeight float64, filters Filters) ([]ragcontext.RetrievedContext, error) {
	fetchK := k * 2

	vectorHits, vErr := s.VectorSearch(ctx, collection, queryText, fetchK, threshold, filters)
	if vErr != nil {
		s.log.Warnf("store: hybrid vector leg failed for %s: %v", collection, vErr)
		vectorHits = nil
	}
	keywordHits, kErr := s.KeywordSearch(ctx, collection, queryText, fetchK, filters)
	if kErr != nil {
		s.log.Warnf("store: hybrid keyword leg failed for %s: %v", collection, kErr)
		keywordHits = nil
	}
	if vErr != nil && kErr != nil {
		return nil, ragerr.Wrap(ragerr.StrategyFailed, "store: both hybrid legs failed", vErr)
	}

	return fuseVectorKeyword(vectorHits, keywordHits, k, vectorWeight, keywordWeight), nil
}

func scanVectorRow(rows pgx.Rows) (Document, float64, error) {
	var d Document
	var score float64
	if err := rows.Scan(&d.JiraID, &d.Key, &d.Project, &d.Priority, &d.Type, &d.Status,
		&d.Component, &d.Version, &d.Reporter, &d.Assignee, &d.Created, &d.Title, &d.Description, &score); err != nil {
		return Document{}, 0, ragerr.Wrap(ragerr.UpstreamTransient, "store: scan row", err)
	}
	return d, score, nil
}

// filterClause builds "AND" predicates for the non-empty fields of f,
// starting parameter numbering at startAt, returning the clause and its args.
func filterClause(f Filters, startAt int) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	n := startAt
	add := func(col, val string) {
		if val == "" {
			return
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, val)
		n++
	}
	add("project", f.Project)
	add("type", f.Type)
	add("status", f.Status)
	add("priority", f.Priority)
	if len(clauses) == 0 {
		return "", nil
	}
	return "AND " + strings.Join(clauses, " AND "), args
}
