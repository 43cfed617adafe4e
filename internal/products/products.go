// Package products implements the Product Registry: fixed vs free pricing,
// tax rates, restrictions, and the locked-product update rule (spec §3,
// §4.2, grounded on original_source/core/service/product.py's attribute
// partition for the "is this a cosmetic update" check).
package products

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/models"
)

// Update is a requested product change. Every field except Name is a
// financial attribute that a locked product may never change (spec §3:
// "any change to price, fixed_price, price_in_vouchers,
// target_account_id, tax_name, restrictions, is_locked, is_returnable
// fails"); touchesFinancialAttribute checks them.
type Update struct {
	Name            *string
	Price           *models.Money
	FixedPrice      *bool
	PriceInVouchers *int64
	TaxRateName     *string
	Restrictions    *[]string
	IsLocked        *bool
	IsReturnable    *bool
	TargetAccountID *int64
}

// Registry reads and mutates products within a caller-supplied
// transaction; it holds no connections of its own, following spec §9's
// "struct holding the pool/config/dependencies" shape adapted down to a
// per-request value since every call already carries a tx.
type Registry struct{}

func New() *Registry { return &Registry{} }

func (r *Registry) Get(ctx context.Context, tx pgx.Tx, id int64) (models.Product, error) {
	var p models.Product
	var price *models.Money
	err := tx.QueryRow(ctx, `
		SELECT id, node_id, name, price, fixed_price, price_in_vouchers, tax_rate_name,
		       restrictions, is_locked, is_returnable, target_account_id
		FROM product WHERE id = $1`, id).
		Scan(&p.ID, &p.NodeID, &p.Name, &price, &p.FixedPrice, &p.PriceInVouchers, &p.TaxRateName,
			&p.Restrictions, &p.IsLocked, &p.IsReturnable, &p.TargetAccountID)
	if err == pgx.ErrNoRows {
		return models.Product{}, apierrors.NotFound("product %d not found", id)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("fetching product %d: %w", id, err)
	}
	p.Price = price
	return p, nil
}

// Validate enforces the data-model invariant fixed_price XOR (price is null).
func Validate(p models.Product) error {
	hasPrice := p.Price != nil
	if p.FixedPrice != hasPrice {
		return apierrors.InvalidArgument("fixed_price must be exactly true iff price is set")
	}
	return nil
}

// ApplyUpdate checks the locked-product rule before mutating, and reports
// InvalidArgument("ProductNotEditable") if a financial attribute is
// touched on a locked product (spec §8 testable property 5).
func (r *Registry) ApplyUpdate(ctx context.Context, tx pgx.Tx, id int64, u Update) (models.Product, error) {
	current, err := r.Get(ctx, tx, id)
	if err != nil {
		return models.Product{}, err
	}

	if current.IsLocked {
		if touchesFinancialAttribute(u) {
			return models.Product{}, apierrors.New(apierrors.KindInvalidArgument, "ProductNotEditable")
		}
	}

	name := current.Name
	if u.Name != nil {
		name = *u.Name
	}

	_, err = tx.Exec(ctx, `UPDATE product SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return models.Product{}, fmt.Errorf("updating product %d: %w", id, err)
	}
	return r.Get(ctx, tx, id)
}

func touchesFinancialAttribute(u Update) bool {
	return u.Price != nil || u.FixedPrice != nil || u.PriceInVouchers != nil ||
		u.TargetAccountID != nil || u.TaxRateName != nil || u.Restrictions != nil ||
		u.IsLocked != nil || u.IsReturnable != nil
}

// HasRestriction reports whether the product carries restriction r.
func HasRestriction(p models.Product, r string) bool {
	for _, have := range p.Restrictions {
		if have == r {
			return true
		}
	}
	return false
}

// RestrictedProductIDs returns, among lineItemProducts, the ids that carry
// the customer tag's restriction flag (e.g. "under_18") — used by the
// Order Service's age restriction check (spec §4.3, scenario S2). A nil
// tagRestriction means the tag carries no flag and nothing is restricted.
func RestrictedProductIDs(lineItemProducts []models.Product, tagRestriction *string) []int64 {
	if tagRestriction == nil {
		return nil
	}
	var restricted []int64
	for _, p := range lineItemProducts {
		if HasRestriction(p, *tagRestriction) {
			restricted = append(restricted, p.ID)
		}
	}
	return restricted
}
