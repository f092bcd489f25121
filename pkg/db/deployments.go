package db

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/gimpelhq/gimpel/pkg/models"
)

func (d *DB) ReplaceDeployment(ctx context.Context, dep *models.Deployment) (*models.Deployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		// Re-check every module reference inside the transaction so a
		// concurrent DeleteModule cannot land between validation and the
		// commit. DeleteModule scans deployments in its own transaction,
		// so the two writes cannot interleave.
		modules := tx.Bucket([]byte(bucketModules))

		for i := range dep.Modules {
			m := &dep.Modules[i]
			if modules.Get([]byte(models.ModuleKey(m.ModuleID, m.ModuleVersion))) == nil {
				return fmt.Errorf("%w: module %s:%s is not in the registry",
					models.ErrInvalidReference, m.ModuleID, m.ModuleVersion)
			}
		}

		b := tx.Bucket([]byte(bucketDeployments))

		var current models.Deployment

		found, err := getJSON(b, dep.SatelliteID, &current)
		if err != nil {
			return err
		}

		if found {
			dep.Version = current.Version + 1
		} else {
			dep.Version = 1
		}

		dep.UpdatedAt = time.Now()

		return putJSON(b, dep.SatelliteID, dep)
	})
	if err != nil {
		return nil, err
	}

	return dep, nil
}

func (d *DB) GetDeployment(ctx context.Context, satelliteID string) (*models.Deployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var dep models.Deployment

	err := d.db.View(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket([]byte(bucketDeployments)), satelliteID, &dep)
		if err != nil {
			return err
		}
		if !found {
			return models.ErrDeploymentNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dep, nil
}

func (d *DB) ListDeployments(ctx context.Context) ([]*models.Deployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var deployments []*models.Deployment

	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketDeployments)).ForEach(func(_, value []byte) error {
			var dep models.Deployment
			if err := unmarshal(value, &dep); err != nil {
				return err
			}

			deployments = append(deployments, &dep)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return deployments, nil
}

func (d *DB) DeleteDeployment(ctx context.Context, satelliteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketDeployments))
		if b.Get([]byte(satelliteID)) == nil {
			return models.ErrDeploymentNotFound
		}

		return b.Delete([]byte(satelliteID))
	})
}
