// Command tokengen mints a merchant access token for testing and
// onboarding. Real tokens are issued by the merchant backend at login.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/MeiCorl/mall-relay/internal/auth"
)

func main() {
	merchantID := flag.Int64("merchant", 0, "merchant id to embed in the token")
	secret := flag.String("secret", os.Getenv("TOKEN_SECRET"), "HS256 signing secret")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *merchantID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: tokengen -merchant <id> [-secret <secret>] [-ttl <duration>]")
		os.Exit(2)
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "tokengen: no secret (set TOKEN_SECRET or pass -secret)")
		os.Exit(2)
	}

	token, err := auth.NewToken(*secret, *merchantID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
