// Command token mints a development bearer token.
//
//	go run ./cmd/token -user u-alice -name alice
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/auth"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
)

func main() {
	user := flag.String("user", "", "user id (required)")
	name := flag.String("name", "", "display name, defaults to the user id")
	flag.Parse()

	if *user == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	v := auth.NewVerifier(auth.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL,
	})
	token, err := v.Issue(domain.UserID(*user), *name)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to issue token")
	}
	fmt.Println(token)
}
