package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"shippingrates/internal/carrier"
	"shippingrates/internal/pricing"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Postgres stores rules and carriers in the tables from db/schema.sql.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

const ruleColumns = `id, carrier_family, dynamic_carrier_id, country_id, method, enabled,
	free_shipment_threshold::float8, max_cod::float8, address_validation`

func scanRule(row pgx.Row) (pricing.PricingRule, error) {
	var (
		r          pricing.PricingRule
		method     string
		validation string
	)
	err := row.Scan(&r.ID, &r.CarrierFamily, &r.DynamicCarrierID, &r.CountryID, &method, &r.Enabled,
		&r.FreeShipmentThreshold, &r.MaxCOD, &validation)
	if err != nil {
		return pricing.PricingRule{}, err
	}
	r.Method = pricing.Method(method)
	r.AddressValidation = pricing.AddressValidation(validation)
	return r, nil
}

func loadBands(ctx context.Context, q pgx.Tx, ruleID uuid.UUID) ([]pricing.WeightBand, error) {
	rows, err := q.Query(ctx, `
        SELECT ceiling_weight_kg::float8, price::float8
        FROM weight_bands
        WHERE pricing_rule_id = $1
        ORDER BY ceiling_weight_kg ASC NULLS LAST, id ASC`, ruleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.WeightBand, error) {
		var b pricing.WeightBand
		err := row.Scan(&b.CeilingWeightKg, &b.Price)
		return b, err
	})
}

// FindEnabledRule reads the rule and its bands in one repeatable-read
// transaction so a concurrent save is never observed half-applied.
func (p *Postgres) FindEnabledRule(ctx context.Context, key pricing.RuleKey) (*pricing.PricingRule, []pricing.WeightBand, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rule, err := scanRule(tx.QueryRow(ctx, `
        SELECT `+ruleColumns+`
        FROM pricing_rules
        WHERE enabled
          AND carrier_family = $1
          AND dynamic_carrier_id IS NOT DISTINCT FROM $2
          AND country_id = $3
          AND method = $4
        LIMIT 1`,
		key.CarrierFamily, key.DynamicCarrierID, pricing.NormalizeCountry(key.CountryID), string(key.Method)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	bands, err := loadBands(ctx, tx, rule.ID)
	if err != nil {
		return nil, nil, err
	}
	return &rule, bands, tx.Commit(ctx)
}

func (p *Postgres) GetRule(ctx context.Context, id uuid.UUID) (*pricing.PricingRule, []pricing.WeightBand, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rule, err := scanRule(tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM pricing_rules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, pricing.ErrPricingRuleNotFound
		}
		return nil, nil, err
	}
	bands, err := loadBands(ctx, tx, rule.ID)
	if err != nil {
		return nil, nil, err
	}
	return &rule, bands, tx.Commit(ctx)
}

func (p *Postgres) ListRules(ctx context.Context, countryID string) ([]pricing.PricingRule, error) {
	rows, err := p.db.Query(ctx, `
        SELECT `+ruleColumns+`
        FROM pricing_rules
        WHERE ($1 = '' OR country_id = $1)
        ORDER BY carrier_family, dynamic_carrier_id NULLS FIRST, country_id, method`,
		pricing.NormalizeCountry(countryID))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.PricingRule, error) {
		return scanRule(row)
	})
}

// SaveRule validates, checks the enabled-key constraint and writes rule and
// bands in one transaction. Nothing is written when any step fails.
func (p *Postgres) SaveRule(ctx context.Context, rule pricing.PricingRule, bands []pricing.WeightBand) (pricing.PricingRule, error) {
	rule = prepareRule(rule)
	if err := pricing.ValidateRuleInput(rule, bands); err != nil {
		return pricing.PricingRule{}, err
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return pricing.PricingRule{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	creating := rule.ID == uuid.Nil
	if creating {
		rule.ID = uuid.New()
	}
	if rule.Enabled {
		conflict, err := enabledConflict(ctx, tx, rule)
		if err != nil {
			return pricing.PricingRule{}, err
		}
		if conflict {
			return pricing.PricingRule{}, pricing.DuplicateCountryError(rule)
		}
	}

	now := time.Now().UTC()
	if creating {
		_, err = tx.Exec(ctx, `
            INSERT INTO pricing_rules (
                id, carrier_family, dynamic_carrier_id, country_id, method, enabled,
                free_shipment_threshold, max_cod, address_validation, created_at, updated_at
            ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
			rule.ID, rule.CarrierFamily, rule.DynamicCarrierID, rule.CountryID, string(rule.Method), rule.Enabled,
			rule.FreeShipmentThreshold, rule.MaxCOD, string(rule.AddressValidation), now)
	} else {
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `
            UPDATE pricing_rules SET
                carrier_family = $2, dynamic_carrier_id = $3, country_id = $4, method = $5, enabled = $6,
                free_shipment_threshold = $7, max_cod = $8, address_validation = $9, updated_at = $10
            WHERE id = $1`,
			rule.ID, rule.CarrierFamily, rule.DynamicCarrierID, rule.CountryID, string(rule.Method), rule.Enabled,
			rule.FreeShipmentThreshold, rule.MaxCOD, string(rule.AddressValidation), now)
		if err == nil && tag.RowsAffected() == 0 {
			return pricing.PricingRule{}, pricing.ErrPricingRuleNotFound
		}
	}
	if err != nil {
		return pricing.PricingRule{}, mapWriteError(err, rule)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM weight_bands WHERE pricing_rule_id = $1`, rule.ID); err != nil {
		return pricing.PricingRule{}, err
	}
	for _, b := range pricing.SortBands(bands) {
		_, err := tx.Exec(ctx, `
            INSERT INTO weight_bands (pricing_rule_id, ceiling_weight_kg, price)
            VALUES ($1, $2, $3)`, rule.ID, b.CeilingWeightKg, b.Price)
		if err != nil {
			return pricing.PricingRule{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return pricing.PricingRule{}, mapWriteError(err, rule)
	}
	return rule, nil
}

func (p *Postgres) SetRuleEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rule, err := scanRule(tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM pricing_rules WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.ErrPricingRuleNotFound
		}
		return err
	}
	if enabled && !rule.Enabled {
		conflict, err := enabledConflict(ctx, tx, rule)
		if err != nil {
			return err
		}
		if conflict {
			return pricing.DuplicateCountryError(rule)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE pricing_rules SET enabled = $2, updated_at = $3 WHERE id = $1`, id, enabled, time.Now().UTC()); err != nil {
		return mapWriteError(err, rule)
	}
	return mapWriteError(tx.Commit(ctx), rule)
}

func (p *Postgres) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM pricing_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pricing.ErrPricingRuleNotFound
	}
	return nil
}

func enabledConflict(ctx context.Context, tx pgx.Tx, rule pricing.PricingRule) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM pricing_rules
            WHERE enabled
              AND id <> $1
              AND carrier_family = $2
              AND dynamic_carrier_id IS NOT DISTINCT FROM $3
              AND country_id = $4
              AND method = $5
        )`, rule.ID, rule.CarrierFamily, rule.DynamicCarrierID, rule.CountryID, string(rule.Method)).Scan(&exists)
	return exists, err
}

// mapWriteError turns a race on the partial unique index into the same
// error the explicit check returns.
func mapWriteError(err error, rule pricing.PricingRule) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pricing.DuplicateCountryError(rule)
	}
	return err
}

func (p *Postgres) ListDynamicCarriers(ctx context.Context) ([]carrier.Dynamic, error) {
	rows, err := p.db.Query(ctx, `
        SELECT carrier_id, carrier_family, name, country_id, max_weight_kg::float8, pickup_points, deleted
        FROM dynamic_carriers
        ORDER BY carrier_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (carrier.Dynamic, error) {
		var d carrier.Dynamic
		err := row.Scan(&d.ID, &d.CarrierFamily, &d.DisplayName, &d.CountryID, &d.MaxWeight, &d.PickupPoints, &d.Deleted)
		return d, err
	})
}

// SyncDynamicCarriers replaces the feed generation: everything is marked
// deleted, then each record is upserted by id. Pricing rules of carriers that
// dropped out of the feed are kept.
func (p *Postgres) SyncDynamicCarriers(ctx context.Context, carriers []carrier.Dynamic) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE dynamic_carriers SET deleted = true, updated_at = $1`, now); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, d := range carriers {
		batch.Queue(`
            INSERT INTO dynamic_carriers (carrier_id, carrier_family, name, country_id, max_weight_kg, pickup_points, deleted, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, false, $7)
            ON CONFLICT (carrier_id) DO UPDATE SET
                carrier_family = EXCLUDED.carrier_family,
                name = EXCLUDED.name,
                country_id = EXCLUDED.country_id,
                max_weight_kg = EXCLUDED.max_weight_kg,
                pickup_points = EXCLUDED.pickup_points,
                deleted = false,
                updated_at = EXCLUDED.updated_at`,
			d.ID, d.CarrierFamily, d.DisplayName, pricing.NormalizeCountry(d.CountryID), d.MaxWeight, d.PickupPoints, now)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
