package inference

// TableMetadata is the derived, read-only view of one source table.
// Its JSON form is the per-table record of the output contract.
type TableMetadata struct {
	TableName   string       `json:"tableName"`
	PrimaryKey  []string     `json:"primaryKey"`
	ForeignKeys []ForeignKey `json:"foreignKeys"`
	Columns     []string     `json:"columns"`

	// Payload is the ordered descriptive column list used for the hash-diff.
	Payload []string `json:"-"`
}

// ForeignKey is a validated relationship.
type ForeignKey struct {
	Column     string    `json:"column"`
	References Reference `json:"references"`
}

// Reference is the target side of a ForeignKey.
type Reference struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}
