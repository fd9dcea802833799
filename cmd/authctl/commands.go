package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/internal/database"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/jrsteele09/go-session-auth/users/bunrepo"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

type cli struct {
	out    io.Writer
	driver string
	dsn    string
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Administer the session auth user store and signing keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&c.driver, "driver", "", "Database driver (sqlite or postgres), defaults to DB_DRIVER")
	cmd.PersistentFlags().StringVar(&c.dsn, "dsn", "", "Database DSN, defaults to DB_DSN")

	cmd.AddCommand(c.newMigrateCommand())
	cmd.AddCommand(c.newUserCommand())
	cmd.AddCommand(c.newKeygenCommand())
	return cmd
}

func (c *cli) openDB(ctx context.Context) (*bun.DB, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	driver, dsn := cfg.DBDriver, cfg.DBDSN
	if c.driver != "" {
		driver = c.driver
	}
	if c.dsn != "" {
		dsn = c.dsn
	}
	db, err := database.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := bunrepo.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// withUsers opens the store for the duration of fn
func (c *cli) withUsers(ctx context.Context, fn func(*users.Service) error) error {
	db, err := c.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, err := bunrepo.New(db)
	if err != nil {
		return err
	}
	svc, err := users.NewService(repo)
	if err != nil {
		return err
	}
	return fn(svc)
}

func (c *cli) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users table if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB(commandContext(cmd))
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(c.out, "migrations applied")
			return nil
		},
	}
}

func (c *cli) newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(c.newUserCreateCommand())
	cmd.AddCommand(c.newUserStateCommand("enable", "Allow a user to log in again", (*users.Service).Enable))
	cmd.AddCommand(c.newUserStateCommand("disable", "Block a user from logging in", (*users.Service).Disable))
	cmd.AddCommand(c.newUserListCommand())
	return cmd
}

func (c *cli) newUserCreateCommand() *cobra.Command {
	var req users.CreateUserRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new active user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return c.withUsers(ctx, func(svc *users.Service) error {
				u, err := svc.Create(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "created user %d <%s>\n", u.ID, u.Email)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&req.Password, "password", "", "Initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) newUserStateCommand(use, short string, apply func(*users.Service, context.Context, int64) (*users.User, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Errorf("invalid user id %q", args[0])
			}
			ctx := commandContext(cmd)
			return c.withUsers(ctx, func(svc *users.Service) error {
				u, err := apply(svc, ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "user %d active=%t\n", u.ID, u.Active)
				return nil
			})
		},
	}
}

func (c *cli) newUserListCommand() *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return c.withUsers(ctx, func(svc *users.Service) error {
				list, err := svc.List(ctx, offset, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tACTIVE")
				for _, u := range list {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", u.ID, u.Name, u.Email, u.Active)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to return")
	return cmd
}

func (c *cli) newKeygenCommand() *cobra.Command {
	var alg, kid string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key pair for JWT_PRIVATE_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				kp  *token.KeyPair
				err error
			)
			switch alg {
			case token.AlgRS256:
				kp, err = token.GenerateRSAKeyPair(kid, 2048)
			case token.AlgES256:
				kp, err = token.GenerateECDSAKeyPair(kid)
			default:
				return errors.Errorf("unsupported algorithm %q, use RS256 or ES256", alg)
			}
			if err != nil {
				return err
			}
			private, err := kp.ExportPrivateKeyPEM()
			if err != nil {
				return err
			}
			public, err := kp.ExportPublicKeyPEM()
			if err != nil {
				return err
			}
			fmt.Fprint(c.out, private)
			fmt.Fprint(c.out, public)
			return nil
		},
	}

	cmd.Flags().StringVar(&alg, "alg", token.AlgES256, "Key algorithm (RS256 or ES256)")
	cmd.Flags().StringVar(&kid, "kid", "", "Key id published in the JWKS")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
