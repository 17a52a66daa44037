// Package metadata caches per-object-type descriptions and selects the
// external-key strategy used to match records across orgs.
package metadata

import (
	"fmt"
	"strings"
	"sync"

	"github.com/orgctl/orgctl/internal/client"
)

// FieldInfo describes one field of an object type.
type FieldInfo struct {
	Name              string
	Type              string
	Label             string
	Length            int
	Nillable          bool
	Createable        bool
	Updateable        bool
	ExternalID        bool
	IDLookup          bool
	Unique            bool
	NameField         bool
	DefaultedOnCreate bool
	PicklistValues    []client.PicklistEntry
}

// Required reports whether the field must be populated on create.
func (f FieldInfo) Required() bool {
	return !f.Nillable
}

// RelationshipField is a reference-type field plus the object types it can
// point at. More than one referenced type means the lookup is polymorphic.
type RelationshipField struct {
	FieldInfo
	ReferenceTo      []string
	RelationshipName string
}

// Polymorphic reports whether the lookup can reference multiple types.
func (r RelationshipField) Polymorphic() bool {
	return len(r.ReferenceTo) > 1
}

// ObjectMetadata is the parsed, immutable description of one object type.
type ObjectMetadata struct {
	Name               string
	Fields             []FieldInfo
	ExternalIDFields   []FieldInfo
	UniqueFields       []FieldInfo
	RelationshipFields []RelationshipField
	NameField          *FieldInfo

	byName map[string]FieldInfo
}

// Field looks a field up by name, case-insensitively.
func (m *ObjectMetadata) Field(name string) (FieldInfo, bool) {
	f, ok := m.byName[strings.ToLower(name)]
	return f, ok
}

// Relationship returns the relationship field with the given name, if any.
func (m *ObjectMetadata) Relationship(fieldName string) (RelationshipField, bool) {
	for _, rel := range m.RelationshipFields {
		if strings.EqualFold(rel.Name, fieldName) {
			return rel, true
		}
	}
	return RelationshipField{}, false
}

// parseDescribe builds ObjectMetadata from a raw describe response.
func parseDescribe(describe *client.ObjectDescribe) *ObjectMetadata {
	md := &ObjectMetadata{
		Name:   describe.Name,
		byName: make(map[string]FieldInfo, len(describe.Fields)),
	}

	for _, raw := range describe.Fields {
		field := FieldInfo{
			Name:              raw.Name,
			Type:              raw.Type,
			Label:             raw.Label,
			Length:            raw.Length,
			Nillable:          raw.Nillable,
			Createable:        raw.Createable,
			Updateable:        raw.Updateable,
			ExternalID:        raw.ExternalID,
			IDLookup:          raw.IDLookup,
			Unique:            raw.Unique,
			NameField:         raw.NameField,
			DefaultedOnCreate: raw.DefaultedOnCreate,
			PicklistValues:    raw.PicklistValues,
		}

		md.Fields = append(md.Fields, field)
		md.byName[strings.ToLower(field.Name)] = field

		if field.ExternalID {
			md.ExternalIDFields = append(md.ExternalIDFields, field)
		}
		if field.Unique && field.Name != "Id" {
			md.UniqueFields = append(md.UniqueFields, field)
		}
		if field.NameField && md.NameField == nil {
			named := field
			md.NameField = &named
		}
		if raw.Type == "reference" && len(raw.ReferenceTo) > 0 {
			md.RelationshipFields = append(md.RelationshipFields, RelationshipField{
				FieldInfo:        field,
				ReferenceTo:      raw.ReferenceTo,
				RelationshipName: raw.RelationshipName,
			})
		}
	}

	return md
}

// Cache memoizes object descriptions for one engine session. It is safe
// for concurrent use; each type is described at most once per session.
type Cache struct {
	client client.PlatformClient

	mu      sync.Mutex
	objects map[string]*ObjectMetadata
}

// NewCache creates a metadata cache backed by the given client.
func NewCache(c client.PlatformClient) *Cache {
	return &Cache{
		client:  c,
		objects: make(map[string]*ObjectMetadata),
	}
}

// Describe returns cached metadata for an object type, fetching it on
// first use. Describe failures are wrapped as retryable.
func (c *Cache) Describe(objectName string) (*ObjectMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if md, ok := c.objects[objectName]; ok {
		return md, nil
	}

	describe, err := c.client.DescribeObject(objectName)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", objectName, err)
	}

	md := parseDescribe(describe)
	c.objects[objectName] = md
	return md, nil
}
