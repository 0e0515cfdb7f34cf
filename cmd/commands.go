package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"codeclaim/cmd/controllers"
	"codeclaim/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the workbooks and serve the claim API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			ctx := cmd.Context()

			if _, err := a.engine.Reload(ctx); err != nil {
				// Claims answer 503 until an admin reload succeeds.
				a.logger.Error("initial load failed", zap.Error(err))
			}

			claimController, err := controllers.NewClaimController(a.engine)
			if err != nil {
				return fmt.Errorf("create claim controller: %w", err)
			}
			adminController, err := controllers.NewAdminController(a.engine)
			if err != nil {
				return fmt.Errorf("create admin controller: %w", err)
			}
			logsController, err := controllers.NewLogsController(a.logService)
			if err != nil {
				return fmt.Errorf("create logs controller: %w", err)
			}

			router := gin.New()
			router.Use(gin.Recovery())

			if err := controllers.RegisterHealthRoutes(router, a.engine); err != nil {
				return fmt.Errorf("register health routes: %w", err)
			}
			if err := claimController.RegisterRoutes(router); err != nil {
				return fmt.Errorf("register claim routes: %w", err)
			}
			admin := router.Group("/admin", controllers.RequireAdmin(a.gate))
			if err := adminController.RegisterRoutes(admin); err != nil {
				return fmt.Errorf("register admin routes: %w", err)
			}
			if err := logsController.RegisterRoutes(admin); err != nil {
				return fmt.Errorf("register logs routes: %w", err)
			}

			scheduler, err := startCron(a.cfg.ReconcileSchedule, a.engine, a.logger.Named("cron"))
			if err != nil {
				return fmt.Errorf("start cron: %w", err)
			}
			defer scheduler.Stop()

			a.logger.Info("serving", zap.String("addr", a.cfg.ListenAddr))
			if err := router.Run(a.cfg.ListenAddr); err != nil {
				return fmt.Errorf("run server: %w", err)
			}
			return nil
		},
	}
}

func newClaimCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <phone>",
		Short: "Claim the code assigned to a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			ctx := cmd.Context()

			if _, err := a.engine.Reload(ctx); err != nil {
				return fmt.Errorf("load: %s", services.Message(err))
			}

			result, err := a.engine.Claim(ctx, services.ClaimRequest{Phone: args[0]})
			if err != nil {
				return errors.New(result.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", result.Message, result.Code)
			return nil
		},
	}
}

func newStatsCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print eligibility and claim log counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			if _, err := a.engine.Reload(cmd.Context()); err != nil {
				return fmt.Errorf("load: %s", services.Message(err))
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(a.engine.Stats())
		},
	}
}

func newExportCmd(current func() *app) *cobra.Command {
	var what string
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the claim log or eligibility table to an xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			ctx := cmd.Context()
			if _, err := a.engine.Reload(ctx); err != nil {
				return fmt.Errorf("load: %s", services.Message(err))
			}

			var content []byte
			var err error
			var prefix string
			switch what {
			case "claims":
				prefix = "领取记录"
				content, err = a.engine.ExportClaimLog(ctx)
			case "eligibility":
				prefix = "主数据"
				content, err = a.engine.ExportEligibility(ctx)
			default:
				return fmt.Errorf("unknown export %q, want claims or eligibility", what)
			}
			if err != nil {
				return fmt.Errorf("export %s: %w", what, err)
			}
			if content == nil {
				return errors.New("暂无领取记录")
			}

			if out == "" {
				out = fmt.Sprintf("%s_%s.xlsx", prefix, time.Now().Format("20060102_150405"))
			}
			if err := os.WriteFile(out, content, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&what, "what", "claims", "claims or eligibility")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: timestamped name)")
	return cmd
}

func newReplayCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Apply journaled claims missing from the workbooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			result, err := a.engine.Reload(cmd.Context())
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "entries=%d restored=%d appended=%d\n",
				result.Replay.Entries, result.Replay.Restored, result.Replay.Appended)
			return nil
		},
	}
}
