package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/efiling/internal/config"
	"github.com/and161185/efiling/internal/metrics"
	"github.com/and161185/efiling/internal/migrate"
	"github.com/and161185/efiling/internal/model"
	"github.com/and161185/efiling/internal/repository"
	"github.com/and161185/efiling/internal/repository/postgres"
	"github.com/and161185/efiling/internal/service"
)

// dsn resolves the database from --dsn, then the config file and environment.
func (o *rootOptions) dsn() (string, error) {
	if o.DSN != "" {
		return o.DSN, nil
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return "", err
	}
	if cfg.DSN == "" {
		return "", fmt.Errorf("no dsn configured")
	}
	return cfg.DSN, nil
}

func (o *rootOptions) withDB(cmd *cobra.Command, fn func(ctx context.Context, db *postgres.DB) error) error {
	dsn, err := o.dsn()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
	defer cancel()
	db, err := postgres.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()
	return fn(ctx, db)
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}
	run := func(fn func(ctx context.Context, dsn string, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			dsn, err := opts.dsn()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			return fn(ctx, dsn, cmd.OutOrStdout())
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, dsn string, out io.Writer) error {
				if err := migrate.Up(ctx, dsn); err != nil {
					return err
				}
				fmt.Fprintln(out, "ok")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, dsn string, out io.Writer) error {
				if err := migrate.Down(ctx, dsn); err != nil {
					return err
				}
				fmt.Fprintln(out, "ok")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, dsn string, out io.Writer) error {
				v, err := migrate.Version(ctx, dsn)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, v)
				return nil
			}),
		},
	)
	return cmd
}

type adminInput struct {
	Email      string
	Password   string
	Surname    string
	Firstname  string
	Post       string
	Department string
	Role       string
}

func newCreateAdminCommand(opts *rootOptions) *cobra.Command {
	in := adminInput{}
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a bootstrap administrator account",
		Long: `Create an administrator directly in the database.

The password is read from --password or EFILING_ADMIN_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Password == "" {
				in.Password = os.Getenv("EFILING_ADMIN_PASSWORD")
			}
			return opts.withDB(cmd, func(ctx context.Context, db *postgres.DB) error {
				u, err := createAdmin(ctx, postgres.NewUserRepo(db), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.Email, u.Role)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "login email (required)")
	f.StringVar(&in.Password, "password", "", "password")
	f.StringVar(&in.Surname, "surname", "Administrator", "surname")
	f.StringVar(&in.Firstname, "firstname", "", "first name")
	f.StringVar(&in.Post, "post", "System Administrator", "post")
	f.StringVar(&in.Department, "department", "", "department")
	f.StringVar(&in.Role, "role", string(model.RoleSuperAdmin), "role: SuperAdmin or Admin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func createAdmin(ctx context.Context, users repository.UserRepository, in adminInput) (*model.User, error) {
	role, ok := model.ParseRole(in.Role)
	if !ok || (role != model.RoleSuperAdmin && role != model.RoleAdmin) {
		return nil, fmt.Errorf("role must be SuperAdmin or Admin, got %q", in.Role)
	}
	auth := service.NewAuthService(users, service.AuthConfig{}, nil, nil, zap.NewNop(), nil)
	return auth.Register(ctx, service.NewUser{
		Email:      in.Email,
		Password:   in.Password,
		Surname:    in.Surname,
		Firstname:  in.Firstname,
		Post:       in.Post,
		Department: in.Department,
		Role:       role,
	})
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair held-file membership from the files table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withDB(cmd, func(ctx context.Context, db *postgres.DB) error {
				return reconcile(ctx, postgres.NewMovementRepo(db), cmd.OutOrStdout())
			})
		},
	}
}

func reconcile(ctx context.Context, movements repository.MovementRepository, out io.Writer) error {
	svc := service.NewMovementService(service.MovementDeps{Movements: movements, Metrics: metrics.New()})
	drift, err := svc.ReconcileSystem(ctx)
	if err != nil {
		return err
	}
	for _, d := range drift {
		fmt.Fprintf(out, "%s\tfile=%s\tuser=%s\n", d.Action, d.FileID, d.UserID)
	}
	fmt.Fprintf(out, "%d repaired\n", len(drift))
	return nil
}
