package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"

	auth "github.com/Small-Group-Org/prd-proto-hub"
)

type dbConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DB_DSN"    envDefault:"file:prdhub.db?cache=shared"`
}

func main() {
	email := flag.String("email", "admin@example.com", "superuser email")
	password := flag.String("password", os.Getenv("SUPERUSER_PASSWORD"), "superuser password (or SUPERUSER_PASSWORD)")
	firstName := flag.String("first-name", "Admin", "first name")
	lastName := flag.String("last-name", "User", "last name")
	flag.Parse()

	if err := run(context.Background(), *email, *password, *firstName, *lastName); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating superuser: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, email, password, firstName, lastName string) error {
	cfg := dbConfig{}
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	logger := auth.DefaultLogger()

	db, err := auth.OpenDB(cfg.Driver, cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.Migrate(ctx, db, logger); err != nil {
		return err
	}

	fmt.Println("Creating superuser...")
	fmt.Println("Email:", email)
	fmt.Println("Password:", strings.Repeat("*", len(password)))

	account, err := auth.NewRegisterAccountHandler(auth.NewRepositoryManager(db)).
		WithLogger(logger).
		Execute(ctx, auth.RegisterAccountMessage{
			Email:     email,
			Password:  password,
			FirstName: firstName,
			LastName:  lastName,
			Role:      string(auth.RoleSuperuser),
			Actor:     auth.ActorRef{Type: auth.ActorTypeSystem},
		})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.TextCode == auth.TextCodeUserAlreadyExists {
			return fmt.Errorf("user with this email already exists")
		}
		return err
	}

	fmt.Println()
	fmt.Println("Superuser created successfully")
	fmt.Println("  ID:   ", account.ID)
	fmt.Println("  Email:", account.Email)
	fmt.Println("  Name: ", account.FirstName, account.LastName)
	fmt.Println("  Role: ", account.Role)
	return nil
}
