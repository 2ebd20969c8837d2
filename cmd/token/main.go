// Command token mints a bearer token for the wallet API using the same
// JWT_* settings as the server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "certwallet/internal/jwt_token"
	"certwallet/internal/platform/config"
)

func main() {
	subject := flag.String("subject", "holder", "token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.FromEnv()
	svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	token, err := svc.GenerateAccessToken(*subject, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
