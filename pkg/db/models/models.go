package models

// All lists every persisted model in dependency order. Tests use it with
// AutoMigrate; production schemas come from the goose migrations.
func All() []any {
	return []any{
		&Supplier{},
		&InventoryItem{},
		&Order{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
