package instance

import "github.com/angelmondragon/guildmarket/pkg/env"

// GetID names this process in logs and lock tokens. DYNO wins over
// MARKET_INSTANCE_ID.
func GetID(fallback string) string {
	return env.First(fallback, "DYNO", "MARKET_INSTANCE_ID")
}
