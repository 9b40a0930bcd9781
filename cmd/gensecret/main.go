// Command gensecret prints a random secret key.
// With --user it prints an access token signed with that key instead, for local testing
// without the auth service.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/lalita/wallet/internal/models"
	"github.com/lalita/wallet/internal/service/auth"
)

const SecretKeyBytesLen = 32

func main() {
	fs := pflag.NewFlagSet("gensecret", pflag.ExitOnError)
	secret := fs.StringP("secret", "s", os.Getenv("JWT_SECRET"), "Key to sign the token with")
	userID := fs.StringP("user", "u", "", "User id to issue access token for")
	email := fs.String("email", "dev@example.com", "User email claim")
	name := fs.String("name", "Dev User", "User name claim")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	_ = fs.Parse(os.Args[1:])

	if *userID == "" {
		b := make([]byte, SecretKeyBytesLen)

		_, err := rand.Read(b)
		if err != nil {
			fmt.Printf("error while generating secret key: %v", err)
			os.Exit(1)
		}

		fmt.Println(hex.EncodeToString(b))
		return
	}

	id, err := uuid.Parse(*userID)
	if err != nil {
		fmt.Printf("invalid user id: %v", err)
		os.Exit(1)
	}

	verifier, err := auth.New(auth.Config{SecretKey: *secret})
	if err != nil {
		fmt.Printf("error while creating token signer: %v", err)
		os.Exit(1)
	}

	token, err := verifier.Issue(models.User{ID: id, Email: *email, Name: *name}, *ttl)
	if err != nil {
		fmt.Printf("error while issuing token: %v", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
