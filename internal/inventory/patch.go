package inventory

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/guildmarket/pkg/errors"
)

// patchField maps one optional ListingPatch field onto its column.
type patchField struct {
	name   string
	column string
	value  func(ListingPatch) (any, bool, error)
}

// listingPatchFields is the fixed set of columns a patch may touch. The
// UPDATE built from a patch only ever names columns from this table.
var listingPatchFields = []patchField{
	{
		name:   "quantity",
		column: "quantity",
		value: func(p ListingPatch) (any, bool, error) {
			if p.Quantity == nil {
				return nil, false, nil
			}
			if *p.Quantity < 0 {
				return nil, true, fmt.Errorf("quantity must be zero or more")
			}
			return *p.Quantity, true, nil
		},
	},
	{
		name:   "price",
		column: "price",
		value: func(p ListingPatch) (any, bool, error) {
			if p.Price == nil {
				return nil, false, nil
			}
			if *p.Price < 0 {
				return nil, true, fmt.Errorf("price must be zero or more")
			}
			return *p.Price, true, nil
		},
	},
}

// buildPatchUpdates turns a patch into a column map plus the names of the
// fields that were present.
func buildPatchUpdates(p ListingPatch) (map[string]any, []string, error) {
	updates := map[string]any{}
	fields := []string{}
	for _, field := range listingPatchFields {
		value, present, err := field.value(p)
		if err != nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		if !present {
			continue
		}
		updates[field.column] = value
		fields = append(fields, field.name)
	}
	if len(fields) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update: provide quantity or price")
	}
	return updates, fields, nil
}
