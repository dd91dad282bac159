package main

import (
	"fmt"
	"os"

	"github.com/tjfontaine/agent-stream-relay/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/keygen/main.go <token>")
		fmt.Println("Generates a SHA-256 hash of the provided token for use in config.yaml")
		os.Exit(1)
	}

	token := os.Args[1]
	keyHash := auth.HashToken(token)

	fmt.Printf("Token: %s\n", token)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("  auth:\n")
	fmt.Printf("    enabled: true\n")
	fmt.Printf("    credentials:\n")
	fmt.Printf("      - name: \"generated\"\n")
	fmt.Printf("        key_hash: \"%s\"\n", keyHash)
}
