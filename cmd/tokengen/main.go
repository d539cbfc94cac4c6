// Package main generates principal tokens for local use of the gatekeeper API.
// Tokens are signed with the dev or demo key and will NOT work in production.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"gatekeeper/internal/jwttoken"
	"gatekeeper/pkg/domain"
	"gatekeeper/pkg/secrets"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	// Demo signing key - matches config.go when ENVIRONMENT=demo
	demoSigningKey = "demo-signing-key-change-me-locally"

	// Default admin token for local/dev environments
	devAdminToken = "demo-admin-token"

	defaultIssuer   = "gatekeeper"
	defaultAudience = "gatekeeper-api"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Hash      string            `json:"hash,omitempty"`
	Type      string            `json:"type"`
	Principal string            `json:"principal,omitempty"`
	JTI       string            `json:"jti,omitempty"`
	ExpiresIn string            `json:"expires_in,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	principalCmd := flag.NewFlagSet("principal", flag.ExitOnError)
	sub := principalCmd.String("sub", "", "Principal address the token authenticates (required)")
	ttl := principalCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	demo := principalCmd.Bool("demo", false, "Use demo signing key instead of dev key")
	principalJSON := principalCmd.Bool("json", false, "Output as JSON")

	adminCmd := flag.NewFlagSet("admin", flag.ExitOnError)
	adminJSON := adminCmd.Bool("json", false, "Output as JSON")
	adminGenerate := adminCmd.Bool("generate", false, "Generate a fresh operator token and its bcrypt hash")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "principal":
		_ = principalCmd.Parse(os.Args[2:])
		generatePrincipalToken(*sub, *ttl, *demo, *principalJSON)
	case "admin":
		_ = adminCmd.Parse(os.Args[2:])
		if *adminGenerate {
			generateAdminToken(*adminJSON)
			return
		}
		showAdminToken(*adminJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate test tokens for the gatekeeper API

WARNING: These tokens use dev/demo signing keys and will NOT work in production.

Usage:
  tokengen <command> [flags]

Commands:
  principal  Generate a principal token (JWT) for an address
  admin      Show the operator token for X-Admin-Token (-generate for a new one)

Examples:
  tokengen principal -sub GISSUER
  tokengen principal -sub GALICE -ttl 1h -json
  tokengen admin
  tokengen admin -generate`)
}

func generatePrincipalToken(sub string, ttl time.Duration, demo, jsonOutput bool) {
	signingKey, keyType := devSigningKey, "dev"
	if demo {
		signingKey, keyType = demoSigningKey, "demo"
	}

	principal, err := domain.ParseAddress(sub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -sub: %v\n", err)
		os.Exit(1)
	}

	svc := jwttoken.NewJWTService(signingKey, defaultIssuer, defaultAudience, ttl)
	token, jti, err := svc.GeneratePrincipalToken(context.Background(), principal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Type:      "principal_token",
			Principal: principal.String(),
			JTI:       jti,
			ExpiresIn: ttl.String(),
			Usage: map[string]string{
				"header":      "Authorization: Bearer <token>",
				"signing_key": keyType,
			},
		})
		return
	}
	fmt.Println("Principal Token (JWT)")
	fmt.Println("=====================")
	fmt.Printf("Signing Key: %s\n", keyType)
	fmt.Printf("Expires In:  %s\n", ttl)
	fmt.Printf("Principal:   %s\n", principal)
	fmt.Printf("JTI:         %s\n", jti)
	fmt.Println()
	fmt.Println(token)
}

func showAdminToken(jsonOutput bool) {
	if jsonOutput {
		printJSON(tokenOutput{
			Token: devAdminToken,
			Type:  "admin_token",
			Usage: map[string]string{
				"header": "X-Admin-Token: " + devAdminToken,
				"note":   "Works when ENVIRONMENT is local/dev/demo/test",
			},
		})
		return
	}
	fmt.Println("Operator Token")
	fmt.Println("==============")
	fmt.Printf("Token: %s\n", devAdminToken)
	fmt.Println()
	fmt.Println("  curl -H \"X-Admin-Token: " + devAdminToken + "\" http://localhost:8080/admin/outbox")
}

func generateAdminToken(jsonOutput bool) {
	token, err := secrets.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}
	hash, err := secrets.Hash(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token: token,
			Hash:  hash,
			Type:  "admin_token",
			Usage: map[string]string{
				"header": "X-Admin-Token: <token>",
				"server": "ADMIN_API_TOKEN_HASH=<hash>",
			},
		})
		return
	}
	fmt.Println("Operator Token")
	fmt.Println("==============")
	fmt.Printf("Token: %s\n", token)
	fmt.Printf("Hash:  %s\n", hash)
	fmt.Println()
	fmt.Println("Hand the token to operators and start the server with ADMIN_API_TOKEN_HASH set to the hash.")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
