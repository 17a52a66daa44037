package metadata

// KeyType ranks how reliable a cross-org matching key is.
type KeyType int

const (
	// KeyRawID matches on the source platform ID and needs an ID-mapping
	// file at restore time. Last resort.
	KeyRawID KeyType = iota
	// KeyNameBased matches on the object's name field; names may collide.
	KeyNameBased
	// KeyUniqueField matches on a unique business field.
	KeyUniqueField
	// KeyExternalID matches on an external-ID field and supports upsert.
	KeyExternalID
)

// String returns the serialized form used in manifest files.
func (k KeyType) String() string {
	switch k {
	case KeyExternalID:
		return "EXTERNAL_ID"
	case KeyUniqueField:
		return "UNIQUE_FIELD"
	case KeyNameBased:
		return "NAME_BASED"
	default:
		return "RAW_ID"
	}
}

// ParseKeyType parses the serialized form; unknown strings map to RAW_ID.
func ParseKeyType(s string) KeyType {
	switch s {
	case "EXTERNAL_ID":
		return KeyExternalID
	case "UNIQUE_FIELD":
		return KeyUniqueField
	case "NAME_BASED":
		return KeyNameBased
	default:
		return KeyRawID
	}
}

// KeyStrategy is the chosen cross-org matching key for one object type.
type KeyStrategy struct {
	Object         string
	KeyField       string
	Type           KeyType
	SupportsUpsert bool
}

// SelectStrategy picks the best matching key from already-fetched metadata,
// in priority order external-ID > unique field > name field > raw ID. It is
// pure: no network, deterministic for a given metadata snapshot (the first
// field in describe order wins within a rank).
func SelectStrategy(md *ObjectMetadata) KeyStrategy {
	if len(md.ExternalIDFields) > 0 {
		return KeyStrategy{
			Object:         md.Name,
			KeyField:       md.ExternalIDFields[0].Name,
			Type:           KeyExternalID,
			SupportsUpsert: true,
		}
	}
	if len(md.UniqueFields) > 0 {
		return KeyStrategy{
			Object:   md.Name,
			KeyField: md.UniqueFields[0].Name,
			Type:     KeyUniqueField,
		}
	}
	if md.NameField != nil {
		return KeyStrategy{
			Object:   md.Name,
			KeyField: md.NameField.Name,
			Type:     KeyNameBased,
		}
	}
	return KeyStrategy{
		Object:   md.Name,
		KeyField: "Id",
		Type:     KeyRawID,
	}
}
