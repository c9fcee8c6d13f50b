package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lattice-ai/authcore/internal/platform/db"
)

// PGLoader reads the registry document from Postgres. The definition lives in
// three tables kept by the platform operators: roles, role_parents and
// role_permissions, with a single-row registry_meta holding the version. All
// four reads run inside one RepeatableRead transaction so a concurrent
// definition update cannot produce a torn document.
type PGLoader struct {
	Pool *pgxpool.Pool
}

// Load assembles the document from the definition tables.
func (l PGLoader) Load(ctx context.Context) (Document, error) {
	var doc Document
	err := db.WithTx(ctx, l.Pool, func(tx pgx.Tx) error {
		loaded, err := loadDocument(ctx, tx)
		if err != nil {
			return err
		}
		doc = loaded
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func loadDocument(ctx context.Context, tx pgx.Tx) (Document, error) {
	var doc Document
	if err := tx.QueryRow(ctx, `SELECT version FROM registry_meta LIMIT 1`).Scan(&doc.Version); err != nil {
		return Document{}, fmt.Errorf("registry: load version: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT name, description FROM roles ORDER BY name`)
	if err != nil {
		return Document{}, fmt.Errorf("registry: load roles: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.Name, &role.Description); err != nil {
			return Document{}, err
		}
		index[CanonicalName(role.Name)] = len(doc.Roles)
		doc.Roles = append(doc.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return Document{}, err
	}

	parentRows, err := tx.Query(ctx, `SELECT role_name, parent_name FROM role_parents ORDER BY role_name, parent_name`)
	if err != nil {
		return Document{}, fmt.Errorf("registry: load parents: %w", err)
	}
	defer parentRows.Close()
	for parentRows.Next() {
		var roleName, parentName string
		if err := parentRows.Scan(&roleName, &parentName); err != nil {
			return Document{}, err
		}
		i, ok := index[CanonicalName(roleName)]
		if !ok {
			return Document{}, fmt.Errorf("%w: role_parents references %q", ErrUnknownRole, roleName)
		}
		doc.Roles[i].Parents = append(doc.Roles[i].Parents, parentName)
	}
	if err := parentRows.Err(); err != nil {
		return Document{}, err
	}

	permRows, err := tx.Query(ctx, `SELECT role_name, action, resource_type, scope, tenant_exempt FROM role_permissions ORDER BY role_name, action, resource_type`)
	if err != nil {
		return Document{}, fmt.Errorf("registry: load permissions: %w", err)
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleName, action, resourceType, scopeRaw string
		var exempt bool
		if err := permRows.Scan(&roleName, &action, &resourceType, &scopeRaw, &exempt); err != nil {
			return Document{}, err
		}
		i, ok := index[CanonicalName(roleName)]
		if !ok {
			return Document{}, fmt.Errorf("%w: role_permissions references %q", ErrUnknownRole, roleName)
		}
		scope, err := ParseScope(scopeRaw)
		if err != nil {
			return Document{}, fmt.Errorf("registry: role %q: %w", roleName, err)
		}
		doc.Roles[i].Permissions = append(doc.Roles[i].Permissions, Permission{
			Action:       action,
			ResourceType: resourceType,
			Scope:        scope,
			TenantExempt: exempt,
		})
	}
	return doc, permRows.Err()
}
