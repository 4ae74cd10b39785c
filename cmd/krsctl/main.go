package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/krs-api/internal/app"
	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/internal/service"
	"github.com/noah-isme/krs-api/pkg/config"
	"github.com/noah-isme/krs-api/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "krsctl",
		Short:         "Operate the KRS enrollment database",
		SilenceUsage: true,
	}
	root.AddCommand(migrateCmd(), seedCmd(), auditCmd(), userCmd())
	return root
}

// withApp loads configuration and runs fn against a wired App.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Printf("logger fallback: %v", err)
		logr = zap.NewNop()
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(cmd.Context(), cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	return fn(a)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				return a.Migrate(cmd.Context())
			})
		},
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert catalog courses that do not exist yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				if file == "" {
					file = a.Config.Catalog.SeedFile
				}
				if file == "" {
					return fmt.Errorf("no catalog file: pass --file or set CATALOG_SEED_FILE")
				}
				inserted, err := a.Seed(cmd.Context(), file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "inserted %d course(s) from %s\n", inserted, file)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog document (.yaml, .yml or .json)")
	return cmd
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check the enrollment ledger invariants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				report, err := a.Audit.Run(cmd.Context())
				if err != nil {
					return err
				}
				return printReport(cmd, report)
			})
		},
	}
}

func printReport(cmd *cobra.Command, report *models.LedgerAuditReport) error {
	out := cmd.OutOrStdout()
	for _, v := range report.CreditViolations {
		fmt.Fprintf(out, "credit_cap\t%s\t%d > %d\n", v.NIM, v.Consumed, v.MaxCredits)
	}
	for _, v := range report.SeatViolations {
		fmt.Fprintf(out, "seat_capacity\t%s\t%d > %d\n", v.Code, v.Consumed, v.Capacity)
	}
	for _, v := range report.Duplicates {
		fmt.Fprintf(out, "unique_active_pair\t%s/%s\t%d rows\n", v.StudentID, v.CourseID, v.Rows)
	}
	if !report.Clean() {
		return fmt.Errorf("ledger audit found violations")
	}
	fmt.Fprintln(out, "ledger clean")
	return nil
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage API accounts"}

	var req service.CreateUserRequest
	var role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a login account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Role = models.UserRole(role)
			return withApp(cmd, func(a *app.App) error {
				created, err := a.Auth.CreateUser(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) %s\n", created.Email, created.Role, created.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&req.Email, "email", "", "login email")
	create.Flags().StringVar(&req.Password, "password", "", "initial password")
	create.Flags().StringVar(&req.FullName, "name", "", "display name")
	create.Flags().StringVar(&role, "role", string(models.RoleStaff), "ADMIN, STAFF or STUDENT")
	create.Flags().StringVar(&req.StudentID, "student-id", "", "student record linked to a STUDENT account")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")
	_ = create.MarkFlagRequired("name")

	user.AddCommand(create)
	return user
}
