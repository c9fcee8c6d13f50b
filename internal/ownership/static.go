package ownership

import "context"

// StaticResolver serves a fixed id-to-record table. Used for singleton
// platform resources such as the registry itself, and in tests.
type StaticResolver struct {
	Records map[string]Record
}

// Resolve looks the id up in the fixed table.
func (r StaticResolver) Resolve(ctx context.Context, id string) (Record, error) {
	record, ok := r.Records[id]
	if !ok {
		return Record{}, ErrResourceNotFound
	}
	return record, nil
}
