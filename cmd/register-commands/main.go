package main

import (
	"context"
	"flag"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/guildmarket/internal/bot"
	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

// register-commands overwrites the application's slash commands. With a
// guild id the commands update instantly in that guild; without one they are
// registered globally.
func main() {
	logg := logger.New(logger.Options{ServiceName: "register-commands"})

	_ = godotenv.Load()

	guildFlag := flag.String("guild", "", "guild id to scope the commands to (defaults to MARKET_DISCORD_GUILD_ID)")
	dryRun := flag.Bool("dry-run", false, "log the command set without calling Discord")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	guildID := cfg.Discord.GuildID
	if *guildFlag != "" {
		guildID = *guildFlag
	}

	commands := bot.Commands()
	names := make([]string, 0, len(commands))
	for _, cmd := range commands {
		names = append(names, cmd.Name)
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"app_id":   cfg.Discord.AppID,
		"guild_id": guildID,
		"commands": names,
	})

	if *dryRun {
		logg.Info(ctx, "dry run, skipping registration")
		return
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logg.Error(ctx, "failed to create discord session", err)
		os.Exit(1)
	}

	registered, err := session.ApplicationCommandBulkOverwrite(cfg.Discord.AppID, guildID, commands)
	if err != nil {
		logg.Error(ctx, "failed to register commands", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "registered", len(registered)), "slash commands registered")
}
