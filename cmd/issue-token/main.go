package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/service"
	"golang.org/x/term"
)

// issue-token mints a JWT for local testing and operator scripts. Production
// tokens are issued by the school account system with the same secret.
func main() {
	var (
		kind        string
		userID      int
		permissions string
		askSecret   bool
	)
	flag.StringVar(&kind, "type", "student", "Token type: student or admin")
	flag.IntVar(&userID, "id", 0, "Student or admin ID")
	flag.StringVar(&permissions, "perms", "", "Comma-separated admin permissions, or \"all\"")
	flag.BoolVar(&askSecret, "ask-secret", false, "Prompt for the signing secret instead of reading JWT_SECRET")
	flag.Parse()

	cfg := config.Load()

	if userID <= 0 {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Enter User ID: ")
		raw, _ := reader.ReadString('\n')
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || id <= 0 {
			fmt.Println("Error: User ID must be a positive number")
			os.Exit(1)
		}
		userID = id
	}

	if askSecret {
		fmt.Print("Enter JWT Secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading secret")
			os.Exit(1)
		}
		if len(secret) < 16 {
			fmt.Println("Error: Secret must be at least 16 characters")
			os.Exit(1)
		}
		cfg.JWTSecret = string(secret)
	}

	authService := service.NewAuthService(cfg)

	var (
		token string
		err   error
	)
	switch service.TokenType(kind) {
	case service.TokenTypeStudent:
		token, err = authService.GenerateStudentToken(userID)
	case service.TokenTypeAdmin:
		token, err = authService.GenerateAdminToken(userID, parsePermissions(permissions))
	default:
		fmt.Printf("Error: unknown token type %q\n", kind)
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

func parsePermissions(raw string) []string {
	if raw == "all" {
		out := make([]string, 0, len(model.AllPermissions))
		for _, p := range model.AllPermissions {
			out = append(out, p.String())
		}
		return out
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
