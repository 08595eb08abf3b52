package types

// TableDef is the wire form of a table definition: everything a remote peer
// needs for schema negotiation and destination setup, without resolver
// bindings.
type TableDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parent      string      `json:"parent,omitempty"`
	Incremental bool        `json:"incremental,omitempty"`
	Multiplexed bool        `json:"multiplexed,omitempty"`
	Columns     []ColumnDef `json:"columns"`
	Relations   []string    `json:"relations,omitempty"`
}

type ColumnDef struct {
	Name           string   `json:"name"`
	Type           DataType `json:"type"`
	PrimaryKey     bool     `json:"primary_key,omitempty"`
	IncrementalKey bool     `json:"incremental_key,omitempty"`
}

func (t *Table) Def() *TableDef {
	def := &TableDef{
		Name:        t.Name,
		Description: t.Description,
		Incremental: t.CursorColumn() != nil,
		Multiplexed: t.Multiplexer != nil,
		Columns:     make([]ColumnDef, 0, len(t.Columns)),
	}
	if t.Parent != nil {
		def.Parent = t.Parent.Name
	}
	for _, c := range t.Columns {
		def.Columns = append(def.Columns, ColumnDef{
			Name:           c.Name,
			Type:           c.Type,
			PrimaryKey:     c.PrimaryKey,
			IncrementalKey: c.IncrementalKey,
		})
	}
	for _, rel := range t.Relations {
		def.Relations = append(def.Relations, rel.Name)
	}
	return def
}

func (d *TableDef) PrimaryKeys() []string {
	var keys []string
	for _, c := range d.Columns {
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

func (d *TableDef) Column(name string) *ColumnDef {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i]
		}
	}
	return nil
}
