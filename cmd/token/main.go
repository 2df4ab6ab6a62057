// Command token signs a bearer token for the Connect API.
//
//	go run ./cmd/token -user 123456789 -name ana -ttl 720h
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/FACorreiaa/quick-capture/pkg/interceptors"
)

func main() {
	userID := flag.Int64("user", 0, "numeric user ID, the same one Telegram reports")
	name := flag.String("name", "", "username stored with captured messages")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.Any("error", err))
	}

	if *userID == 0 {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	token, err := interceptors.IssueToken([]byte(os.Getenv("JWT_SECRET")), *userID, *name, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
