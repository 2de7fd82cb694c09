// Command devtoken prints a bearer token for local testing, signed with
// JWT_SECRET.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/event-ticketing/internal/auth"
)

func main() {
	flagSet := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	var id auth.Identity
	flagSet.StringVar(&id.UserID, "user", "", "subject (user id)")
	flagSet.StringVar(&id.Email, "email", "", "email claim")
	flagSet.StringVar(&id.Name, "name", "", "name claim")
	flagSet.StringVar(&id.Phone, "phone", "", "phone claim")
	ttl := flagSet.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" || id.UserID == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET and --user are required")
		os.Exit(2)
	}
	tok, err := auth.Sign(secret, id, *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
