package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/guildmarket/pkg/auth"
	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

// admin-token mints a bearer token for the admin HTTP API and prints it.
func main() {
	logg := logger.New(logger.Options{ServiceName: "admin-token"})

	_ = godotenv.Load()

	user := flag.String("user", "", "discord user id recorded as the token subject")
	role := flag.String("role", string(enums.MemberRoleAdmin), "admin|viewer")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: *user,
		Role:   enums.MemberRole(*role),
	})
	if err != nil {
		logg.Error(logg.WithUserID(context.Background(), *user), "failed to mint token", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
