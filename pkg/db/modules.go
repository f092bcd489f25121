package db

import (
	"context"
	"time"

	"go.etcd.io/bbolt"

	"github.com/gimpelhq/gimpel/pkg/models"
)

func (d *DB) CreateModule(ctx context.Context, mod *models.Module) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := models.ModuleKey(mod.ID, mod.Version)
	now := time.Now()

	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketModules))
		if b.Get([]byte(key)) != nil {
			return models.ErrDuplicateVersion
		}

		if mod.CreatedAt.IsZero() {
			mod.CreatedAt = now
		}
		mod.UpdatedAt = now

		return putJSON(b, key, mod)
	})
}

func (d *DB) GetModule(ctx context.Context, id, version string) (*models.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var mod models.Module

	err := d.db.View(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket([]byte(bucketModules)), models.ModuleKey(id, version), &mod)
		if err != nil {
			return err
		}
		if !found {
			return models.ErrModuleNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &mod, nil
}

func (d *DB) ListModules(ctx context.Context) ([]*models.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var modules []*models.Module

	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketModules)).ForEach(func(_, value []byte) error {
			var mod models.Module
			if err := unmarshal(value, &mod); err != nil {
				return err
			}

			modules = append(modules, &mod)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return modules, nil
}

func (d *DB) DeleteModule(ctx context.Context, id, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := models.ModuleKey(id, version)

	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketModules))
		if b.Get([]byte(key)) == nil {
			return models.ErrModuleNotFound
		}

		// Refuse deletion while any current deployment still names this
		// module version.
		err := tx.Bucket([]byte(bucketDeployments)).ForEach(func(_, value []byte) error {
			var dep models.Deployment
			if err := unmarshal(value, &dep); err != nil {
				return err
			}

			for _, m := range dep.Modules {
				if m.ModuleID == id && m.ModuleVersion == version {
					return models.ErrModuleInUse
				}
			}

			return nil
		})
		if err != nil {
			return err
		}

		return b.Delete([]byte(key))
	})
}

func (d *DB) CountModules(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int

	err := d.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(bucketModules)).Stats().KeyN
		return nil
	})

	return count, err
}
