// cmd/workflowctl/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"statistics-workflow-api/config"
	"statistics-workflow-api/models"
	"statistics-workflow-api/services"
	"statistics-workflow-api/utils"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "workflowctl",
	Short:         "Administer the statistics workflow database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			config.Log.Debug("No .env file found, using environment variables")
		}
		settings, err := config.LoadSettings()
		if err != nil {
			return err
		}
		config.Log.SetLevel(config.ParseLevel(settings.LogLevel))
		settings.Database.Quiet = true
		if err := config.InitDB(settings.Database); err != nil {
			return err
		}
		screensFile = settings.ScreensFile
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = config.Close(config.DB)
	},
}

var screensFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and seed workflow statuses and roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := config.Migrate(config.DB); err != nil {
			return err
		}
		if err := services.SeedStatuses(ctx, config.DB); err != nil {
			return err
		}
		if err := services.NewUserDirectory(config.DB).SeedRoles(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied successfully")
		return nil
	},
}

var userAddCmd = &cobra.Command{
	Use:   "user-add",
	Short: "Create a user with a workflow role",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		first, _ := cmd.Flags().GetString("first-name")
		last, _ := cmd.Flags().GetString("last-name")
		roleName, _ := cmd.Flags().GetString("role")
		department, _ := cmd.Flags().GetString("department")

		if !utils.ValidateEmail(email) {
			return fmt.Errorf("invalid email %q", email)
		}
		role, ok := services.RoleByName(roleName)
		if !ok || role == services.RoleNone {
			return fmt.Errorf("unknown role %q", roleName)
		}

		user := models.User{
			UserFname: utils.SanitizeInput(first),
			UserLname: utils.SanitizeInput(last),
			Email:     strings.ToLower(email),
		}
		if department != "" {
			user.DepartmentCode = &department
		}
		created, err := services.NewUserDirectory(config.DB).AddUser(cmd.Context(), user, role)
		if err != nil {
			return errors.Wrap(err, "create user")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %d (%s) is %s\n", created.UserID, created.Email, role)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <screen>",
	Short: "Show the workflow status of a screen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workflow, err := newWorkflowService(cmd.Context())
		if err != nil {
			return err
		}
		status, err := workflow.CurrentStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, status)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <screen>",
	Short: "Print the audit trail of a screen, or of one of its rows with --record, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordID, _ := cmd.Flags().GetInt("record")
		workflow, err := newWorkflowService(cmd.Context())
		if err != nil {
			return err
		}
		var target string
		if cmd.Flags().Changed("record") {
			target, err = services.NewRecordService(workflow, workflow.Screens()).HistoryTarget(args[0], recordID)
		} else {
			target, err = workflow.ResolveScreen(args[0])
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for record, err := range workflow.Audit().History(cmd.Context(), target) {
			if err != nil {
				return err
			}
			from := "-"
			if record.FromStatusName != nil {
				from = *record.FromStatusName
			}
			fmt.Fprintf(out, "#%d %s %-16s %s -> %s by %s\n",
				record.AuditID, record.Timestamp.Format("2006-01-02 15:04:05"),
				record.Action, from, record.ToStatusName, record.ActorDisplayName)
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <screen>",
	Short: "Reset a screen to Draft and purge its audit trail (System Admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adminID, _ := cmd.Flags().GetInt("as")
		workflow, err := newWorkflowService(cmd.Context())
		if err != nil {
			return err
		}
		actor, err := services.NewUserDirectory(config.DB).Lookup(cmd.Context(), adminID)
		if err != nil {
			return err
		}
		actor.IPAddress = "127.0.0.1"
		actor.UserAgent = "workflowctl"

		result, err := workflow.Apply(cmd.Context(), services.ActionRequest{
			ScreenCode: args[0],
			Action:     services.ActionAdminReset,
			Actor:      *actor,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Message)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [screen...]",
	Short: "Check that each screen's latest audit entry matches its status",
	RunE: func(cmd *cobra.Command, args []string) error {
		workflow, err := newWorkflowService(cmd.Context())
		if err != nil {
			return err
		}
		codes := args
		if len(codes) == 0 {
			catalog, err := config.LoadScreenCatalog(screensFile)
			if err != nil {
				return err
			}
			for _, screen := range catalog.All() {
				codes = append(codes, screen.Code)
			}
		}

		failed := 0
		for _, code := range codes {
			if err := workflow.CheckConsistency(cmd.Context(), code); err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", code, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", code)
		}
		if failed > 0 {
			return fmt.Errorf("%d screen(s) inconsistent", failed)
		}
		return nil
	},
}

func newWorkflowService(ctx context.Context) (*services.WorkflowService, error) {
	catalog, err := config.LoadScreenCatalog(screensFile)
	if err != nil {
		return nil, err
	}
	statuses, err := services.LoadStatusRegistry(ctx, config.DB)
	if err != nil {
		return nil, err
	}
	audit := services.NewAuditTrail(config.DB, statuses, services.NewUserDirectory(config.DB))
	return services.NewWorkflowService(config.DB, statuses, audit, services.WithScreens(catalog)), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func init() {
	userAddCmd.Flags().String("email", "", "user email")
	userAddCmd.Flags().String("first-name", "", "first name")
	userAddCmd.Flags().String("last-name", "", "last name")
	userAddCmd.Flags().String("role", "", "workflow role (maker, checker, head, admin)")
	userAddCmd.Flags().String("department", "", "department code")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("role")

	historyCmd.Flags().Int("record", 0, "dataset row id; prints that row's trail instead of the screen's")

	resetCmd.Flags().Int("as", 0, "user id of the System Admin performing the reset")
	_ = resetCmd.MarkFlagRequired("as")

	rootCmd.AddCommand(migrateCmd, userAddCmd, statusCmd, historyCmd, resetCmd, verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		config.Log.Error(err)
		os.Exit(1)
	}
}
