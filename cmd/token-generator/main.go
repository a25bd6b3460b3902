// Command token-generator prepares operator credentials for the
// calculation service. It hashes admin keys for the auth.admin_key_hash
// setting and mints bearer tokens for scripted clients that cannot go
// through the /api/v1/auth/token exchange.
//
// Usage:
//
//	token-generator -hash-key 'my-admin-key'
//	token-generator -mint -subject ci-runner -lifetime 120
//
// Minting reads the signing secret from CALCSYNC_AUTH_TOKEN_SECRET
// unless -secret is given. Output goes to stdout with no decoration so
// it can be captured directly into environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/zinses-rechner/calcsync/internal/config"
	"github.com/zinses-rechner/calcsync/internal/service/auth"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "token-generator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	hashKey := flag.String("hash-key", "", "admin key to hash for auth.admin_key_hash")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost used with -hash-key")
	mint := flag.Bool("mint", false, "mint a bearer token")
	secret := flag.String("secret", os.Getenv("CALCSYNC_AUTH_TOKEN_SECRET"),
		"token signing secret (default: CALCSYNC_AUTH_TOKEN_SECRET)")
	subject := flag.String("subject", "operator", "token subject used with -mint")
	lifetime := flag.Int("lifetime", 60, "token lifetime in minutes used with -mint")
	flag.Parse()

	switch {
	case *hashKey != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashKey), *cost)
		if err != nil {
			return fmt.Errorf("generating bcrypt hash: %w", err)
		}
		fmt.Println(string(hash))
		return nil

	case *mint:
		if *secret == "" {
			return errors.New("a signing secret is required: set CALCSYNC_AUTH_TOKEN_SECRET or pass -secret")
		}
		svc, err := auth.NewJWTService(config.AuthConfig{
			TokenSecret:          *secret,
			TokenLifetimeMinutes: *lifetime,
		})
		if err != nil {
			return fmt.Errorf("initializing JWT service: %w", err)
		}
		token, err := svc.GenerateToken(context.Background(), *subject)
		if err != nil {
			return fmt.Errorf("minting token: %w", err)
		}
		fmt.Println(token)
		return nil

	default:
		flag.Usage()
		return errors.New("nothing to do: pass -hash-key or -mint")
	}
}
