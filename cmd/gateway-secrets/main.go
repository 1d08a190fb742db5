// Command gateway-secrets encrypts provider API keys into the gateway's
// secrets file so gatewayd doesn't need them in the process environment.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"

	"orchestrator/internal/config"

	"golang.org/x/term"
)

func main() {
	var projectDir string
	flag.StringVar(&projectDir, "projectdir", "", "Project directory to write the secrets file into (default: current directory)")
	flag.Parse()

	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to determine working directory: %v", err)
		}
		projectDir = wd
	}

	secrets := map[string]string{}
	for _, env := range []string{config.EnvAnthropicAPIKey, config.EnvOpenAIAPIKey, config.EnvGoogleAPIKey} {
		fmt.Printf("%s (leave blank to skip): ", env)
		var value string
		if _, err := fmt.Scanln(&value); err != nil && value == "" {
			continue
		}
		if value != "" {
			secrets[env] = value
		}
	}
	if len(secrets) == 0 {
		log.Fatal("no secrets entered, nothing to encrypt")
	}

	password, err := promptForPassword()
	if err != nil {
		log.Fatalf("failed to read password: %v", err)
	}

	if err := config.EncryptSecretsFile(projectDir, password, secrets); err != nil {
		log.Fatalf("failed to encrypt secrets: %v", err)
	}
	fmt.Println("secrets written; start gatewayd with GATEWAY_SECRETS_PASSWORD set to decrypt them")
}

func promptForPassword() (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Print("Enter a password for this secrets file: ")
		password1, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		fmt.Print("Confirm password: ")
		password2, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if bytes.Equal(password1, password2) {
			return string(password1), nil
		}
		if attempt < maxAttempts {
			fmt.Println("passwords do not match, try again")
			continue
		}
		return "", fmt.Errorf("passwords do not match after %d attempts", maxAttempts)
	}
	return "", fmt.Errorf("unreachable")
}
