package main

import (
	"fmt"

	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
)

func main() {
	fmt.Printf("Session ID: %s\n", auth.NewSessionID())
	fmt.Printf("User ID:    %s\n", auth.NewUUIDv7())
}
