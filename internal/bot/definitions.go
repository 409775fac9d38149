package bot

import "github.com/bwmarrin/discordgo"

var (
	minOne  = 1.0
	minZero = 0.0
	noDMs   = false
	admins  = int64(discordgo.PermissionAdministrator)
)

func intOption(name, description string, required bool, min *float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		Required:    required,
		MinValue:    min,
	}
}

func stringOption(name, description string, required bool, maxLength int) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    required,
		MaxLength:   maxLength,
	}
}

func subCommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     options,
	}
}

// Commands returns the slash commands the bot answers. Every name here has
// an entry in commandTable.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         "supplier",
			Description:  "Manage your supplier profile and listings",
			DMPermission: &noDMs,
			Options: []*discordgo.ApplicationCommandOption{
				subCommand("register", "Register as a supplier"),
				subCommand("add", "Add stock to a listing or create one",
					stringOption("name", "Item name", true, 100),
					intOption("quantity", "Units to add", true, &minOne),
					intOption("price", "Unit price", true, &minZero),
					stringOption("description", "Optional description", false, 500),
				),
				subCommand("update", "Change a listing's quantity or price",
					intOption("item_id", "Listing id", true, &minOne),
					intOption("quantity", "New quantity", false, &minZero),
					intOption("price", "New unit price", false, &minZero),
				),
				subCommand("merge", "Fold duplicate listings with the same name",
					stringOption("name", "Item name", true, 100),
				),
				subCommand("remove", "Delete a listing",
					intOption("item_id", "Listing id", true, &minOne),
				),
				subCommand("inventory", "Show your listings"),
			},
		},
		{
			Name:         "catalog",
			Description:  "Browse everything in stock",
			DMPermission: &noDMs,
		},
		{
			Name:         "order",
			Description:  "Buy an item from the catalog",
			DMPermission: &noDMs,
			Options: []*discordgo.ApplicationCommandOption{
				intOption("item_id", "Listing id from /catalog", true, &minOne),
				intOption("quantity", "Units to buy", true, &minOne),
				stringOption("location", "Where to deliver", true, 200),
				stringOption("delivery_time", "When to deliver", true, 200),
			},
		},
		{
			Name:         "orders",
			Description:  "Show your orders",
			DMPermission: &noDMs,
		},
		{
			Name:         "received-orders",
			Description:  "Show orders placed with you",
			DMPermission: &noDMs,
		},
		{
			Name:         "confirm",
			Description:  "Mark an order you supplied as delivered",
			DMPermission: &noDMs,
			Options: []*discordgo.ApplicationCommandOption{
				intOption("order_id", "Order id", true, &minOne),
			},
		},
		{
			Name:         "cancel",
			Description:  "Cancel a pending order",
			DMPermission: &noDMs,
			Options: []*discordgo.ApplicationCommandOption{
				intOption("order_id", "Order id", true, &minOne),
			},
		},
		{
			Name:                     "stats",
			Description:              "Marketplace statistics",
			DMPermission:             &noDMs,
			DefaultMemberPermissions: &admins,
		},
		{
			Name:        "help",
			Description: "How the marketplace works",
		},
	}
}
