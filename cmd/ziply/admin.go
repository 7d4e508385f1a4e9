package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ziplyhq/ziply/internal/accounts"
	"github.com/ziplyhq/ziply/internal/auth"
	"github.com/ziplyhq/ziply/internal/validation"
)

func runAdmin(args []string) int {
	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "create-superuser":
		return runCreateSuperuser(args[1:])
	case "reset-password":
		return runResetPassword(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  ziply admin create-superuser --email user@example.com --name <name> [--password <pw>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  ziply admin reset-password --email user@example.com [--password <new>] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - If --password is omitted, a random password is generated and printed.")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to ZIPLY_DB_DSN.")
}

func runCreateSuperuser(args []string) int {
	fs := flag.NewFlagSet("create-superuser", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var name string
	var password string
	var dbDSN string

	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&name, "name", "", "Display name")
	fs.StringVar(&password, "password", "", "Password (if empty, generates one)")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to ZIPLY_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	normalized, err := validation.NormalizeEmail(email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid email: %v\n", err)
		return 2
	}

	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}
	if err := validation.ValidatePassword(password); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid password: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, ok := adminPool(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer pool.Close()

	user, err := accounts.NewService(pool).CreateSuper(ctx, normalized, name, password)
	if err != nil {
		if errors.Is(err, accounts.ErrDuplicateEmail) {
			fmt.Fprintf(os.Stderr, "A user with email %q already exists\n", normalized)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to create superuser: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stdout, "Superuser created: %s (%s)\n", user.Email, user.ID)
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

	return 0
}

func runResetPassword(args []string) int {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	var password string
	var dbDSN string

	fs.StringVar(&email, "email", "", "User email")
	fs.StringVar(&password, "password", "", "New password (if empty, generates one)")
	fs.StringVar(&dbDSN, "db-dsn", "", "Postgres DSN (defaults to ZIPLY_DB_DSN)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	normalized, err := validation.NormalizeEmail(email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid email: %v\n", err)
		return 2
	}

	generated := false
	if password == "" {
		pw, err := generatePassword(24)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate password: %v\n", err)
			return 1
		}
		password = pw
		generated = true
	}
	if err := validation.ValidatePassword(password); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid password: %v\n", err)
		return 2
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, ok := adminPool(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer pool.Close()

	tag, err := pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE email = $1`, normalized, passwordHash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update password: %v\n", err)
		return 1
	}
	if tag.RowsAffected() == 0 {
		fmt.Fprintf(os.Stderr, "No user found with email %q\n", normalized)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Password updated.")
	if generated {
		fmt.Fprintln(os.Stdout, password)
	}

	return 0
}

func generatePassword(bytesLen int) (string, error) {
	if bytesLen < 8 {
		bytesLen = 8
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, printable, without padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func adminPool(ctx context.Context, dbDSN string) (*pgxpool.Pool, bool) {
	if dbDSN == "" {
		dbDSN = strings.TrimSpace(os.Getenv("ZIPLY_DB_DSN"))
	}
	if dbDSN == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set ZIPLY_DB_DSN)")
		return nil, false
	}

	pool, err := pgxpool.New(ctx, dbDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, false
	}
	return pool, true
}
