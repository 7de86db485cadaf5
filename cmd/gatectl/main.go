package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/apikey"
	"github.com/makkenzo/commentgate-api/internal/handler/dto"
	"github.com/makkenzo/commentgate-api/internal/service"
	"github.com/makkenzo/commentgate-api/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type cliState struct {
	configPath string
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	st := &cliState{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "gatectl",
		Short:         "Operator tool for the comment gate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", "./configs/config.dev.yaml", "Path to configuration file")

	root.AddCommand(newAPIKeyCmd(st), newLicenseCmd(st), newQuotaCmd(st), newHashPasswordCmd())
	return root
}

// withStores loads the config and opens storage for the duration of fn.
func (s *cliState) withStores(ctx context.Context, fn func(cfg *config.Config, st *storage.Stores) error) error {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := storage.Open(ctx, cfg, s.logger)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

func newAPIKeyCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage provisioning API keys"}

	var description, scope string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withStores(cmd.Context(), func(cfg *config.Config, st *storage.Stores) error {
				resp, err := service.NewAPIKeyService(st.APIKeys, s.logger).CreateAPIKey(cmd.Context(), description, scope)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "API key (shown once, store it securely):\n%s\n\n", resp.FullKey)
				fmt.Fprintf(out, "ID: %s\nPrefix: %s\nScope: %s\n", resp.ID, resp.Prefix, resp.Scope)
				return nil
			})
		},
	}
	create.Flags().StringVar(&description, "description", "payment relay", "Key description")
	create.Flags().StringVar(&scope, "scope", apikey.ScopeProvision, "Key scope")

	cmd.AddCommand(create)
	return cmd
}

func newLicenseCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "license", Short: "Manage licenses"}

	var tier, note string
	var validFor time.Duration
	create := &cobra.Command{
		Use:   "create",
		Short: "Provision a new unactivated license",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withStores(cmd.Context(), func(cfg *config.Config, st *storage.Stores) error {
				clock := service.NewCycleClock(cfg.Gate.ResetHour, cfg.Gate.Location())
				svc := service.NewLicenseService(st.Licenses, st.Quotas, clock, cfg.Gate, s.logger)

				req := &dto.ProvisionLicenseRequest{Tier: tier, Note: note}
				if validFor > 0 {
					expires := time.Now().Add(validFor)
					req.ExpiresAt = &expires
				}
				lic, err := svc.ProvisionLicense(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), lic.LicenseKey)
				return nil
			})
		},
	}
	create.Flags().StringVar(&tier, "tier", "", "License tier (default tier when empty)")
	create.Flags().StringVar(&note, "note", "", "Free-form note, e.g. an order reference")
	create.Flags().DurationVar(&validFor, "valid-for", 0, "Hard expiry from now; zero leaves it to activation")

	cmd.AddCommand(create)
	return cmd
}

func newQuotaCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{Use: "quota", Short: "Quota maintenance"}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Reset counters left over from earlier cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withStores(cmd.Context(), func(cfg *config.Config, st *storage.Stores) error {
				clock := service.NewCycleClock(cfg.Gate.ResetHour, cfg.Gate.Location())
				now := time.Now()
				n, err := service.NewResetScheduler(st.Quotas, clock, s.logger).ResetDueCounters(cmd.Context(), now)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: reset %d counters\n", clock.CycleDate(now), n)
				return nil
			})
		},
	}

	cmd.AddCommand(reset)
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for admin.passwordHash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
