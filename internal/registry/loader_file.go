package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileLoader reads the registry document from a JSON file on disk.
type FileLoader struct {
	Path string
}

type documentWire struct {
	Version int64      `json:"version"`
	Roles   []roleWire `json:"roles"`
}

type roleWire struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parents     []string         `json:"parents"`
	Permissions []permissionWire `json:"permissions"`
}

type permissionWire struct {
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	Scope        string `json:"scope"`
	TenantExempt bool   `json:"tenant_exempt"`
}

// Load parses the document. Any malformed entry fails the whole load.
func (l FileLoader) Load(ctx context.Context) (Document, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return Document{}, fmt.Errorf("registry: read %s: %w", l.Path, err)
	}
	return ParseDocument(data)
}

// ParseDocument decodes a JSON registry document into the domain shape.
func ParseDocument(data []byte) (Document, error) {
	var wire documentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Document{}, fmt.Errorf("registry: parse document: %w", err)
	}
	doc := Document{Version: wire.Version, Roles: make([]Role, 0, len(wire.Roles))}
	for _, rw := range wire.Roles {
		role := Role{
			Name:        rw.Name,
			Description: rw.Description,
			Parents:     rw.Parents,
			Permissions: make([]Permission, 0, len(rw.Permissions)),
		}
		for _, pw := range rw.Permissions {
			scope, err := ParseScope(pw.Scope)
			if err != nil {
				return Document{}, fmt.Errorf("registry: role %q: %w", rw.Name, err)
			}
			role.Permissions = append(role.Permissions, Permission{
				Action:       pw.Action,
				ResourceType: pw.ResourceType,
				Scope:        scope,
				TenantExempt: pw.TenantExempt,
			})
		}
		doc.Roles = append(doc.Roles, role)
	}
	return doc, nil
}
