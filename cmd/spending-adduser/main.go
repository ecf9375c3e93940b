package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Imaginaryverse/spending-habits/internal/auth"
	"github.com/Imaginaryverse/spending-habits/internal/backend"
	"github.com/Imaginaryverse/spending-habits/internal/cli"
	"github.com/Imaginaryverse/spending-habits/internal/core"
)

func main() {
	cli.LoadEnvFile()
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("spending-adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	email := fs.String("email", "", "Email address")
	name := fs.String("name", "", "Display name (defaults to the email local part)")
	limit := fs.Int64("limit", 0, "Monthly spending limit (0 for none)")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	backendType := fs.String("backend", envOr("DATA_BACKEND", string(backend.SQLiteBackend)), "Backend: sqlite or postgres")
	dbPath := fs.String("db", envOr("SQLITE_DB_PATH", "./data/spending.db"), "Path to SQLite database file")
	dsn := fs.String("dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		fmt.Fprintln(stdout, "Usage: spending-adduser -email <email> [-name <name>] [-limit <amount>] [-password <password>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: email")
	}
	if *limit < 0 {
		return core.ErrInvalidLimit
	}

	bt := backend.BackendType(*backendType)
	if bt == backend.MemoryBackend {
		return fmt.Errorf("memory backend does not persist users")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	result, err := backend.NewFactory().CreateBackend(ctx, backend.Config{
		Type:         bt,
		SQLiteDBPath: *dbPath,
		PostgresDSN:  *dsn,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer result.Cleanup()

	user, err := auth.NewPasswordAuthenticator(result.Store).Register(ctx, *email, strings.TrimSpace(*name), password)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if *limit > 0 {
		profile, err := result.Store.GetProfile(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		profile.MonthlySpendingLimit = *limit
		if _, err := result.Store.SaveProfile(ctx, profile); err != nil {
			return fmt.Errorf("failed to set monthly limit: %w", err)
		}
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s\n", user.Email, user.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// non-terminal input such as pipes and tests
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
