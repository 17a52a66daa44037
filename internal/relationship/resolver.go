package relationship

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/orgctl/orgctl/internal/client"
	"github.com/orgctl/orgctl/internal/csvio"
	"github.com/orgctl/orgctl/internal/metadata"
)

// resolveBatchSize caps key values per resolution query.
const resolveBatchSize = 100

// auditUserFields resolve to User by convention when the describe carries
// no relationship metadata for them.
var auditUserFields = map[string]bool{
	"OwnerId":          true,
	"CreatedById":      true,
	"LastModifiedById": true,
}

var refPattern = regexp.MustCompile(`^_ref_(.+?)_(.+)$`)

// refColumnSpec is one parsed enrichment column.
type refColumnSpec struct {
	Column   string
	Field    string
	KeyField string
}

// Resolver rewrites lookup fields in restore rows to target-side IDs using
// the enrichment columns. The value cache is safe for concurrent use so
// object types in the same dependency level can resolve in parallel.
type Resolver struct {
	client client.PlatformClient
	meta   *metadata.Cache
	log    func(string)

	mu sync.Mutex
	// cache maps "<type>.<keyField>" -> key value -> target ID.
	cache map[string]map[string]string
}

// NewResolver creates a resolver backed by the target-org client.
func NewResolver(c client.PlatformClient, meta *metadata.Cache, log func(string)) *Resolver {
	if log == nil {
		log = func(string) {}
	}
	return &Resolver{
		client: c,
		meta:   meta,
		log:    log,
		cache:  make(map[string]map[string]string),
	}
}

// parseRefColumns identifies enrichment columns in the row set. Field
// names containing underscores are matched against known relationship
// fields first so `_ref_Parent_Account__c_Name` splits correctly; the
// shortest-field regex split is the fallback for fields the describe does
// not list.
func (r *Resolver) parseRefColumns(md *metadata.ObjectMetadata, rows []csvio.Row) []refColumnSpec {
	var known []string
	for _, rel := range md.RelationshipFields {
		known = append(known, rel.Name)
	}
	for field := range auditUserFields {
		known = append(known, field)
	}
	// Longest field names first so the most specific prefix wins.
	sort.Slice(known, func(i, j int) bool { return len(known[i]) > len(known[j]) })

	seen := make(map[string]bool)
	var specs []refColumnSpec
	for _, row := range rows {
		for _, column := range row.Columns() {
			if seen[column] || !strings.HasPrefix(column, refPrefix) {
				continue
			}
			seen[column] = true

			matched := false
			for _, field := range known {
				prefix := refPrefix + field + "_"
				if strings.HasPrefix(column, prefix) && len(column) > len(prefix) {
					specs = append(specs, refColumnSpec{Column: column, Field: field, KeyField: column[len(prefix):]})
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if m := refPattern.FindStringSubmatch(column); m != nil {
				specs = append(specs, refColumnSpec{Column: column, Field: m[1], KeyField: m[2]})
			}
		}
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Column < specs[j].Column })
	return specs
}

// referencedTypes returns the candidate target types for a lookup field,
// in declared order. Audit user fields fall back to User.
func (r *Resolver) referencedTypes(md *metadata.ObjectMetadata, field string) []string {
	if rel, ok := md.Relationship(field); ok {
		return rel.ReferenceTo
	}
	if auditUserFields[field] {
		return []string{"User"}
	}
	return nil
}

// Resolve rewrites every lookup field covered by an enrichment column to
// the matching target-side ID and strips the enrichment columns. A lookup
// whose key value has no target match is dropped from the row so a stale
// source ID is never written. Rows are modified in place.
func (r *Resolver) Resolve(objectName string, rows []csvio.Row) error {
	if len(rows) == 0 {
		return nil
	}
	md, err := r.meta.Describe(objectName)
	if err != nil {
		return err
	}

	specs := r.parseRefColumns(md, rows)
	for _, spec := range specs {
		candidates := r.referencedTypes(md, spec.Field)
		if len(candidates) == 0 {
			r.log(fmt.Sprintf("Warning: no referenced type known for %s.%s, skipping %s", objectName, spec.Field, spec.Column))
			continue
		}

		values := collectValues(rows, spec.Column)
		resolved, err := r.resolveValues(candidates, spec.KeyField, values)
		if err != nil {
			return fmt.Errorf("resolve %s.%s: %w", objectName, spec.Field, err)
		}

		dropped := 0
		for i := range rows {
			key := rows[i].Value(spec.Column)
			rows[i].Delete(spec.Column)
			if csvio.IsAbsent(key) {
				continue
			}
			if id, ok := resolved[key]; ok {
				rows[i].Set(spec.Field, id)
			} else {
				rows[i].Delete(spec.Field)
				dropped++
			}
		}
		if dropped > 0 {
			r.log(fmt.Sprintf("Warning: %d %s rows reference %s values with no match in target org, field dropped", dropped, objectName, spec.Field))
		}
	}

	return nil
}

// resolveValues maps key values to target IDs, trying each candidate type
// in declared order; the first type that yields a match for a value wins.
func (r *Resolver) resolveValues(candidates []string, keyField string, values []string) (map[string]string, error) {
	resolved := make(map[string]string, len(values))
	remaining := values

	for _, objectName := range candidates {
		if len(remaining) == 0 {
			break
		}
		found, err := r.lookupTargetIDs(objectName, keyField, remaining)
		if err != nil {
			return nil, err
		}
		var unresolved []string
		for _, v := range remaining {
			if id, ok := found[v]; ok {
				resolved[v] = id
			} else {
				unresolved = append(unresolved, v)
			}
		}
		remaining = unresolved
	}
	return resolved, nil
}

// lookupTargetIDs is the cached, batched value -> target ID lookup for one
// (type, key field) pair.
func (r *Resolver) lookupTargetIDs(objectName, keyField string, values []string) (map[string]string, error) {
	cacheKey := objectName + "." + keyField

	r.mu.Lock()
	cached := r.cache[cacheKey]
	if cached == nil {
		cached = make(map[string]string)
		r.cache[cacheKey] = cached
	}
	var missing []string
	for _, v := range values {
		if _, ok := cached[v]; !ok {
			missing = append(missing, v)
		}
	}
	r.mu.Unlock()

	fetched := make(map[string]string)
	for start := 0; start < len(missing); start += resolveBatchSize {
		end := start + resolveBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		soql := fmt.Sprintf("SELECT Id, %s FROM %s WHERE %s IN (%s)",
			keyField, objectName, keyField, quoteList(missing[start:end]))
		records, err := r.client.Query(soql)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			id, _ := record["Id"].(string)
			key := stringValue(record[keyField])
			if id != "" && key != "" {
				fetched[key] = id
			}
		}
	}

	r.mu.Lock()
	for k, v := range fetched {
		cached[k] = v
	}
	result := make(map[string]string, len(values))
	for _, v := range values {
		if id, ok := cached[v]; ok {
			result[v] = id
		}
	}
	r.mu.Unlock()
	return result, nil
}
