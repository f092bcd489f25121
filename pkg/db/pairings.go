package db

import (
	"context"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/gimpelhq/gimpel/pkg/models"
)

// NormalizeToken folds a pairing token into its index form: uppercase, no
// display separators.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(token), "-", ""))
}

func (d *DB) CreatePairing(ctx context.Context, p *models.Pairing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return d.db.Update(func(tx *bbolt.Tx) error {
		if err := putJSON(tx.Bucket([]byte(bucketPairings)), p.ID, p); err != nil {
			return err
		}

		ref := map[string]string{"id": p.ID}

		return putJSON(tx.Bucket([]byte(bucketPairingTokens)), NormalizeToken(p.Token), ref)
	})
}

func (d *DB) GetPairingByToken(ctx context.Context, token string) (*models.Pairing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var p models.Pairing

	err := d.db.View(func(tx *bbolt.Tx) error {
		id, err := lookupPairingID(tx, token)
		if err != nil {
			return err
		}

		found, err := getJSON(tx.Bucket([]byte(bucketPairings)), id, &p)
		if err != nil {
			return err
		}
		if !found {
			return models.ErrPairingNotFound
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// RedeemPairing is the one-shot redemption: the used check, the used flip,
// and the satellite registration commit or roll back together. Concurrent
// redemptions of the same token serialize on the store's write transaction,
// so exactly one caller wins.
func (d *DB) RedeemPairing(ctx context.Context, token string, sat *models.Satellite) (*models.Pairing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()

	var p models.Pairing

	err := d.db.Update(func(tx *bbolt.Tx) error {
		id, err := lookupPairingID(tx, token)
		if err != nil {
			return err
		}

		pairings := tx.Bucket([]byte(bucketPairings))

		found, err := getJSON(pairings, id, &p)
		if err != nil {
			return err
		}
		if !found {
			return models.ErrPairingNotFound
		}

		if now.After(p.ExpiresAt) {
			return models.ErrPairingExpired
		}

		if p.Used {
			return models.ErrPairingAlreadyUsed
		}

		p.Used = true
		p.UsedAt = &now
		p.AssignedAgent = sat.ID
		p.AgentHostname = sat.Hostname

		if err := putJSON(pairings, id, &p); err != nil {
			return err
		}

		if sat.RegisteredAt.IsZero() {
			sat.RegisteredAt = now
		}
		if sat.LastSeenAt.IsZero() {
			sat.LastSeenAt = now
		}

		return putJSON(tx.Bucket([]byte(bucketSatellites)), sat.ID, sat)
	})
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (d *DB) ListPairings(ctx context.Context) ([]*models.Pairing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pairings []*models.Pairing

	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketPairings)).ForEach(func(_, value []byte) error {
			var p models.Pairing
			if err := unmarshal(value, &p); err != nil {
				return err
			}

			pairings = append(pairings, &p)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return pairings, nil
}

func lookupPairingID(tx *bbolt.Tx, token string) (string, error) {
	var ref map[string]string

	found, err := getJSON(tx.Bucket([]byte(bucketPairingTokens)), NormalizeToken(token), &ref)
	if err != nil {
		return "", err
	}
	if !found || ref["id"] == "" {
		return "", models.ErrPairingNotFound
	}

	return ref["id"], nil
}
