// Package relationship carries lookup references across org boundaries.
// The enricher runs at capture time and records each referenced record's
// portable key; the resolver runs at restore time and rewrites lookups to
// valid target-side IDs.
package relationship

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/metadata"
)

const (
	// enrichBatchSize caps IDs per enrichment query.
	enrichBatchSize = 200
	// refPrefix marks synthetic enrichment columns.
	refPrefix = "_ref_"
)

// RefColumn builds the enrichment column name for a lookup field and the
// referenced type's key field.
func RefColumn(field, keyField string) string {
	return refPrefix + field + "_" + keyField
}

// Enricher appends enrichment columns to captured rows. Lookup values are
// fetched from the source org in batches and cached for the session.
type Enricher struct {
	client client.PlatformClient
	meta   *metadata.Cache
	log    func(string)

	// keyByID caches object type -> source ID -> chosen-key value.
	keyByID map[string]map[string]string
}

// NewEnricher creates an enricher backed by the source-org client.
func NewEnricher(c client.PlatformClient, meta *metadata.Cache, log func(string)) *Enricher {
	if log == nil {
		log = func(string) {}
	}
	return &Enricher{
		client:  c,
		meta:    meta,
		log:     log,
		keyByID: make(map[string]map[string]string),
	}
}

// Enrich appends one enrichment column per (lookup field, referenced type)
// pair that can be resolved to a portable key. Rows are modified in place.
// Types whose best key is the raw platform ID are skipped; the ID-mapping
// file covers those.
func (e *Enricher) Enrich(objectName string, rows []csvio.Row) error {
	md, err := e.meta.Describe(objectName)
	if err != nil {
		return err
	}

	for _, rel := range md.RelationshipFields {
		ids := collectValues(rows, rel.Name)
		if len(ids) == 0 {
			continue
		}
		for _, referenced := range rel.ReferenceTo {
			refMd, err := e.meta.Describe(referenced)
			if err != nil {
				e.log(fmt.Sprintf("Warning: cannot describe %s for %s.%s: %v", referenced, objectName, rel.Name, err))
				continue
			}
			strategy := metadata.SelectStrategy(refMd)
			if strategy.Type == metadata.KeyRawID {
				continue
			}
			keys, err := e.lookupKeys(referenced, strategy.KeyField, ids)
			if err != nil {
				return fmt.Errorf("enrich %s.%s: %w", objectName, rel.Name, err)
			}
			if len(keys) == 0 {
				continue
			}
			column := RefColumn(rel.Name, strategy.KeyField)
			for i := range rows {
				if key, ok := keys[rows[i].Value(rel.Name)]; ok {
					rows[i].Set(column, key)
				}
			}
		}
	}
	return nil
}

// lookupKeys maps source IDs to their key-field values, querying only the
// IDs not already cached.
func (e *Enricher) lookupKeys(objectName, keyField string, ids []string) (map[string]string, error) {
	cached := e.keyByID[objectName]
	if cached == nil {
		cached = make(map[string]string)
		e.keyByID[objectName] = cached
	}

	var missing []string
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}

	for start := 0; start < len(missing); start += enrichBatchSize {
		end := start + enrichBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		soql := fmt.Sprintf("SELECT Id, %s FROM %s WHERE Id IN (%s)",
			keyField, objectName, quoteList(missing[start:end]))
		records, err := e.client.Query(soql)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			id, _ := record["Id"].(string)
			key := stringValue(record[keyField])
			if id != "" && key != "" {
				cached[id] = key
			}
		}
	}

	result := make(map[string]string, len(ids))
	for _, id := range ids {
		if key, ok := cached[id]; ok {
			result[id] = key
		}
	}
	return result, nil
}

// collectValues returns the distinct non-absent values of a column, sorted
// for deterministic query construction.
func collectValues(rows []csvio.Row, column string) []string {
	set := make(map[string]bool)
	for _, row := range rows {
		if v := row.Value(column); !csvio.IsAbsent(v) {
			set[v] = true
		}
	}
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// quoteList renders values as a quoted SOQL IN-list.
func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
	}
	return strings.Join(quoted, ", ")
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
