package db

import (
	"context"
	"time"

	"go.etcd.io/bbolt"

	"github.com/gimpelhq/gimpel/pkg/models"
)

func (d *DB) CreateSatellite(ctx context.Context, sat *models.Satellite) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()

	return d.db.Update(func(tx *bbolt.Tx) error {
		if sat.RegisteredAt.IsZero() {
			sat.RegisteredAt = now
		}
		if sat.LastSeenAt.IsZero() {
			sat.LastSeenAt = now
		}

		return putJSON(tx.Bucket([]byte(bucketSatellites)), sat.ID, sat)
	})
}

func (d *DB) GetSatellite(ctx context.Context, id string) (*models.Satellite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sat models.Satellite

	err := d.db.View(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket([]byte(bucketSatellites)), id, &sat)
		if err != nil {
			return err
		}
		if !found {
			return models.ErrSatelliteNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &sat, nil
}

func (d *DB) ListSatellites(ctx context.Context) ([]*models.Satellite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var satellites []*models.Satellite

	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSatellites)).ForEach(func(_, value []byte) error {
			var sat models.Satellite
			if err := unmarshal(value, &sat); err != nil {
				return err
			}

			satellites = append(satellites, &sat)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return satellites, nil
}

func (d *DB) TouchSatellite(
	ctx context.Context, id string, status models.SatelliteStatus, seenAt time.Time,
) (*models.Satellite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sat models.Satellite

	err := d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSatellites))

		found, err := getJSON(b, id, &sat)
		if err != nil {
			return err
		}
		if !found {
			return models.ErrSatelliteNotFound
		}

		// Last writer by timestamp wins: a touch carrying an older
		// observation than the stored one is dropped.
		if seenAt.Before(sat.LastSeenAt) {
			return nil
		}

		sat.Status = status
		sat.LastSeenAt = seenAt

		return putJSON(b, id, &sat)
	})
	if err != nil {
		return nil, err
	}

	return &sat, nil
}

// MarkSatelliteStatus sets a satellite's status without advancing its
// last-seen timestamp. Used by the liveness sweeper to downgrade satellites
// that stopped reporting.
func (d *DB) MarkSatelliteStatus(ctx context.Context, id string, status models.SatelliteStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSatellites))

		var sat models.Satellite

		found, err := getJSON(b, id, &sat)
		if err != nil {
			return err
		}
		if !found {
			return models.ErrSatelliteNotFound
		}

		if sat.Status == status {
			return nil
		}

		sat.Status = status

		return putJSON(b, id, &sat)
	})
}

func (d *DB) CountSatellites(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int

	err := d.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(bucketSatellites)).Stats().KeyN
		return nil
	})

	return count, err
}
