package inventory

import "github.com/angelmondragon/guildmarket/pkg/db/models"

// UpsertListingInput adds stock for a supplier's item, creating it on first use.
type UpsertListingInput struct {
	SupplierID  string
	Name        string
	Quantity    int
	Price       int64
	Description *string
}

// ListingResult reports what an upsert did to the stored row.
type ListingResult struct {
	Item             models.InventoryItem
	Merged           bool
	PreviousQuantity int
	PreviousPrice    int64
}

// ListingPatch lists the fields a supplier wants to overwrite. Nil fields are
// left untouched.
type ListingPatch struct {
	ItemID     int64
	SupplierID string
	Quantity   *int
	Price      *int64
}

// PatchResult carries the row before and after the patch.
type PatchResult struct {
	Before models.InventoryItem
	After  models.InventoryItem
	Fields []string
}

// MergeResult describes a collapse of duplicate listings.
type MergeResult struct {
	Item         models.InventoryItem
	KeptID       int64
	RemovedIDs   []int64
	RemovedCount int
}

// InsufficientStockDetails is attached to stock conflicts.
type InsufficientStockDetails struct {
	Available int `json:"available"`
	Requested int `json:"requested"`
}
