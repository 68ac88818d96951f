package indexer

import (
	"context"
	"fmt"

	"github.com/MingChen0919/elastic-search/internal/domain"
	"github.com/MingChen0919/elastic-search/internal/query"
	"github.com/MingChen0919/elastic-search/internal/source"
)

// Source layouts. Tripal 3 sites store features behind chado_bio_data_<n>
// bundle tables joined to tripal_entity; Tripal 2 sites behind chado_feature
// joined to node.
const (
	VersionTripal2 = 2
	VersionTripal3 = 3

	NodePartition = "chado_feature"
	bundlePrefix  = "chado_bio_data_"
)

// geneQuery is the record query of a partition. keyAlias is the result
// column holding Key.
type geneQuery struct {
	source.Query
	keyAlias string
}

var featureColumns = []string{
	"F.uniquename AS uniquename",
	"F.feature_id AS feature_id",
	"F.seqlen AS sequence_length",
	"F.residues AS sequence",
	"CV.name AS type",
	"O.genus AS organism_genus",
	"O.species AS organism_species",
	"O.common_name AS organism_common_name",
}

func recordQuery(src Source, spec Spec) geneQuery {
	joins := fmt.Sprintf("JOIN %s O ON F.organism_id = O.organism_id JOIN %s CV ON F.type_id = CV.cvterm_id",
		src.Chado("organism"), src.Chado("cvterm"))

	if spec.Version == VersionTripal2 {
		return geneQuery{
			Query: source.Query{
				Columns: append([]string{"CF.nid AS node_id"}, featureColumns...),
				From: fmt.Sprintf("%s CF JOIN %s F ON CF.feature_id = F.feature_id %s JOIN node N ON N.nid = CF.nid",
					spec.Partition, src.Chado("feature"), joins),
				Where: "N.status = 1",
				Key:   "CF.nid",
			},
			keyAlias: "node_id",
		}
	}
	return geneQuery{
		Query: source.Query{
			Columns: append([]string{"BT.entity_id AS entity_id"}, featureColumns...),
			From: fmt.Sprintf("%s BT JOIN %s F ON BT.record_id = F.feature_id %s JOIN tripal_entity TE ON BT.entity_id = TE.id",
				spec.Partition, src.Chado("feature"), joins),
			Where: "TE.status = 1",
			Key:   "BT.entity_id",
		},
		keyAlias: "entity_id",
	}
}

// window narrows q to the key range of spec.
func (q geneQuery) window(spec Spec) geneQuery {
	q.Args = append([]any(nil), q.Args...)
	if spec.KeyAfter != nil {
		q.Where = and(q.Where, q.Key+" > ?")
		q.Args = append(q.Args, *spec.KeyAfter)
	}
	if spec.KeyThrough != nil {
		q.Where = and(q.Where, q.Key+" <= ?")
		q.Args = append(q.Args, *spec.KeyThrough)
	}
	return q
}

func and(a, b string) string {
	if a == "" {
		return b
	}
	return "(" + a + ") AND " + b
}

func annotationQuery(src Source) source.Query {
	return source.Query{
		Columns: []string{
			"db.name AS db_name",
			"dbxref.accession AS accession",
			"cv.name AS cv_name",
			"feature_cvterm.feature_id AS feature_id",
			"cvterm.definition AS definition",
		},
		From: fmt.Sprintf("%s dbxref JOIN %s cvterm ON dbxref.dbxref_id = cvterm.dbxref_id"+
			" JOIN %s feature_cvterm ON cvterm.cvterm_id = feature_cvterm.cvterm_id"+
			" JOIN %s db ON dbxref.db_id = db.db_id"+
			" JOIN %s cv ON cvterm.cv_id = cv.cv_id",
			src.Chado("dbxref"), src.Chado("cvterm"), src.Chado("feature_cvterm"), src.Chado("db"), src.Chado("cv")),
		Key: "feature_cvterm.feature_id",
	}
}

func blastQuery(src Source) source.Query {
	return source.Query{
		Columns: []string{"feature_id", "hit_description", "hit_accession"},
		From:    src.Chado("blast_hit_data"),
		Key:     "feature_id",
	}
}

// enricher joins annotations and blast hits onto records of one job.
type enricher struct {
	src     Source
	version int

	blastChecked bool
	hasBlast     bool
}

// records builds the enriched records of rows. The document id of a record
// is its feature id.
func (e *enricher) records(ctx context.Context, rows []source.Row, keyAlias string) ([]*domain.Record, error) {
	records := make([]*domain.Record, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		fid, ok := row.Int64("feature_id")
		if !ok {
			return nil, fmt.Errorf("row %s=%s has no feature_id", keyAlias, row.String(keyAlias))
		}
		records = append(records, domain.NewRecord(fid, map[string]any(row)))
		ids = append(ids, fid)
	}
	if len(records) == 0 {
		return records, nil
	}

	annotations, err := e.annotations(ctx, ids)
	if err != nil {
		return nil, err
	}
	hits, err := e.blastHits(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := r.Enrich(annotations[r.Key], hits[r.Key], e.url(r)); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (e *enricher) url(r *domain.Record) string {
	row := source.Row(r.Fields)
	if e.version == VersionTripal2 {
		return "node/" + row.String("node_id")
	}
	return "bio_data/" + row.String("entity_id")
}

// annotations returns [db_name, cv_name, accession, definition] tuples per feature.
func (e *enricher) annotations(ctx context.Context, ids []int64) (map[int64][][]string, error) {
	rows, err := e.src.FetchByKeys(ctx, annotationQuery(e.src), "feature_cvterm.feature_id", ids)
	if err != nil {
		return nil, fmt.Errorf("loading annotations: %w", err)
	}
	out := make(map[int64][][]string)
	for _, row := range rows {
		fid, _ := row.Int64("feature_id")
		out[fid] = append(out[fid], []string{
			row.String("db_name"), row.String("cv_name"), row.String("accession"), row.String("definition"),
		})
	}
	return out, nil
}

// blastHits returns [hit_description, hit_accession] pairs per feature. The
// blast table is optional; without it every feature has no hits.
func (e *enricher) blastHits(ctx context.Context, ids []int64) (map[int64][][]string, error) {
	if !e.blastChecked {
		ok, err := e.src.TableExists(ctx, e.src.Chado("blast_hit_data"))
		if err != nil {
			return nil, fmt.Errorf("checking blast_hit_data: %w", err)
		}
		e.blastChecked, e.hasBlast = true, ok
	}
	out := make(map[int64][][]string)
	if !e.hasBlast {
		return out, nil
	}
	rows, err := e.src.FetchByKeys(ctx, blastQuery(e.src), "feature_id", ids)
	if err != nil {
		return nil, fmt.Errorf("loading blast hits: %w", err)
	}
	for _, row := range rows {
		fid, _ := row.Int64("feature_id")
		out[fid] = append(out[fid], []string{row.String("hit_description"), row.String("hit_accession")})
	}
	return out, nil
}

// GeneIndexDescriptor describes the index gene records are written to.
func GeneIndexDescriptor(name string, shards, replicas int) (*query.IndexDescriptor, error) {
	return query.NewIndexDescriptor(name).
		Shards(shards).
		Replicas(replicas).
		TokenFilters("lowercase", "asciifolding").
		Field("uniquename", "text").
		Field("feature_id", "integer").
		Field("entity_id", "integer").
		Field("node_id", "integer").
		Field("sequence_length", "integer").
		Field("sequence", "text").
		Field("type", "text").
		Field("organism_genus", "text").
		Field("organism_species", "text").
		Field("organism_common_name", "text").
		Field("annotations", "text").
		Field("blast_hit_descriptions", "text").
		Field("url", "keyword").
		Build()
}
