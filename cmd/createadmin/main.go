// createadmin provisions a staff account for the HanGuk Bites dashboard.
// Accounts are never created through the public API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/internal/repo"
	"github.com/diagnosis/hanguk-bookings/internal/repo/backend"
	"github.com/diagnosis/hanguk-bookings/internal/validation"
	"github.com/diagnosis/hanguk-bookings/pkg/auth"
	"github.com/diagnosis/hanguk-bookings/pkg/config"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
)

type options struct {
	Username string
	Email    string
	Password string
	Role     string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("createadmin", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVarP(&opts.Username, "username", "u", "", "login name (required)")
	flagSet.StringVarP(&opts.Email, "email", "e", "", "contact email (required)")
	flagSet.StringVarP(&opts.Password, "password", "p", "", "password; falls back to ADMIN_PASSWORD")
	flagSet.StringVarP(&opts.Role, "role", "r", domain.RoleStaff, "one of admin, manager, staff")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(out, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(out, flagSet)
		return nil
	}
	if opts.Password == "" {
		opts.Password = os.Getenv("ADMIN_PASSWORD")
	}
	if err := opts.validate(); err != nil {
		return err
	}

	cfg := config.Load()
	logger.Init(cfg.Server.Env)
	if backend.Scheme(cfg.Database.URL) == "memory" {
		return errors.New("DATABASE_URL points at the in-memory store; accounts would not persist")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, _, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	admin, err := createAdmin(ctx, store.Admins(), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created %s account %q (%s) in %s\n", admin.Role, admin.Username, admin.ID, store.Backend())
	return nil
}

func (o *options) validate() error {
	o.Username = strings.TrimSpace(o.Username)
	o.Email = strings.TrimSpace(strings.ToLower(o.Email))
	o.Role = strings.ToLower(strings.TrimSpace(o.Role))

	if o.Username == "" {
		return errors.New("--username is required")
	}
	if len(o.Username) < 3 || len(o.Username) > 50 {
		return errors.New("username must be between 3 and 50 characters")
	}
	if o.Email == "" {
		return errors.New("--email is required")
	}
	if _, err := mail.ParseAddress(o.Email); err != nil {
		return fmt.Errorf("invalid email %q", o.Email)
	}
	if !domain.IsValidRole(o.Role) {
		return fmt.Errorf("invalid role %q", o.Role)
	}
	if o.Password == "" {
		return errors.New("--password or ADMIN_PASSWORD is required")
	}
	return validation.PasswordStrength(o.Password)
}

func createAdmin(ctx context.Context, admins repo.AdminStore, opts options) (*domain.Admin, error) {
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	admin := &domain.Admin{
		Username:     opts.Username,
		Email:        opts.Email,
		PasswordHash: hash,
		Role:         opts.Role,
		IsActive:     true,
	}
	if err := admins.Create(ctx, admin); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("username %q is already taken", opts.Username)
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}
	return admin, nil
}

func printHelp(out io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(out, "Usage: createadmin --username NAME --email ADDRESS [--role ROLE]\n\n")
	fmt.Fprintf(out, "Creates a dashboard account in the store named by DATABASE_URL.\n\n")
	fmt.Fprintf(out, "Flags:\n")
	flagSet.PrintDefaults()
}
