package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
)

func main() {
	secret := flag.String("secret", os.Getenv("SUPABASE_JWT_SECRET"), "HS256 signing secret (default: $SUPABASE_JWT_SECRET)")
	userID := flag.String("user", "", "User UUID (random if empty)")
	email := flag.String("email", "", "Email claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -secret <jwt-secret> [-user <uuid>] [-email <email>] [-ttl 24h]")
		os.Exit(1)
	}

	id := auth.NewUUIDv7()
	if *userID != "" {
		parsed, err := uuid.Parse(*userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid user ID: %v\n", err)
			os.Exit(1)
		}
		id = parsed
	}

	token, err := auth.MintToken(*secret, id, *email, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User: %s\n", id)
	fmt.Printf("Authorization: Bearer %s\n", token)
}
