package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/sandbox"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Manage the strategy catalog",
	Long: `Inspect, validate and seed strategy records.

Commands:
  list      Show stored strategies by role
  validate  Statically validate a strategy source file
  seed      Insert the builtin strategy catalog`,
}

var (
	listRole     string
	listAll      bool
	validateFile string
	validateClas string
	validateRole string
)

var strategyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show stored strategies",
	RunE:  runStrategyList,
}

var strategyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Statically validate a strategy source file",
	Long: `Runs the static validator against a local Go source file without
storing anything.

Example:
  go run ./cmd/quant strategy validate --file my_selector.go --class MySelector --role selector`,
	RunE: runStrategyValidate,
}

var strategySeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the builtin strategy catalog",
	RunE:  runStrategySeed,
}

func init() {
	rootCmd.AddCommand(strategyCmd)
	strategyCmd.AddCommand(strategyListCmd, strategyValidateCmd, strategySeedCmd)

	strategyListCmd.Flags().StringVar(&listRole, "role", "", "filter by role: selector, entry or exit")
	strategyListCmd.Flags().BoolVar(&listAll, "all", false, "include disabled and unvalidated records")

	strategyValidateCmd.Flags().StringVar(&validateFile, "file", "", "path to the strategy source (required)")
	strategyValidateCmd.Flags().StringVar(&validateClas, "class", "", "strategy struct name (required)")
	strategyValidateCmd.Flags().StringVar(&validateRole, "role", "", "selector, entry or exit (required)")
	strategyValidateCmd.MarkFlagRequired("file")
	strategyValidateCmd.MarkFlagRequired("class")
	strategyValidateCmd.MarkFlagRequired("role")
}

func parseRole(raw string) (contracts.Role, error) {
	switch contracts.Role(raw) {
	case contracts.RoleSelector, contracts.RoleEntry, contracts.RoleExit:
		return contracts.Role(raw), nil
	}
	return "", fmt.Errorf("role must be selector, entry or exit, got %q", raw)
}

func runStrategyList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	roles := []contracts.Role{contracts.RoleSelector, contracts.RoleEntry, contracts.RoleExit}
	if listRole != "" {
		role, err := parseRole(listRole)
		if err != nil {
			return err
		}
		roles = []contracts.Role{role}
	}

	widths := []int{5, 18, 10, 9, 8, 8, 10}
	PrintTableHeader([]string{"ID", "NAME", "ROLE", "SOURCE", "STATUS", "RISK", "ENABLED"}, widths)

	total := 0
	for _, role := range roles {
		records, err := rt.store.ListByRole(ctx, role, !listAll)
		if err != nil {
			return fmt.Errorf("list %s strategies: %w", role, err)
		}
		for _, rec := range records {
			if !listAll && rec.ValidationStatus != strategy.ValidationPassed {
				continue
			}
			PrintTableRow([]string{
				fmt.Sprintf("%d", rec.ID),
				rec.Name,
				string(rec.Role),
				string(rec.SourceType),
				string(rec.ValidationStatus),
				string(rec.RiskLevel),
				fmt.Sprintf("%t", rec.IsEnabled),
			}, widths)
			total++
		}
	}

	PrintSeparator()
	fmt.Printf("%d strategies\n", total)
	return nil
}

func runStrategyValidate(cmd *cobra.Command, args []string) error {
	role, err := parseRole(validateRole)
	if err != nil {
		return err
	}

	code, err := os.ReadFile(validateFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", validateFile, err)
	}

	res := sandbox.Validate(string(code), validateClas, role)

	PrintDoubleSeparator()
	PrintKeyValue("File", validateFile, 8)
	PrintKeyValue("Class", validateClas, 8)
	PrintKeyValue("Role", string(role), 8)
	PrintKeyValue("Risk", string(res.RiskLevel), 8)
	PrintSeparator()

	for _, msg := range res.Errors {
		PrintError(msg)
	}
	for _, msg := range res.Warnings {
		PrintWarning(msg)
	}

	if !res.Valid {
		return fmt.Errorf("validation failed with %d error(s)", len(res.Errors))
	}
	PrintSuccess("Validation passed")
	return nil
}

func runStrategySeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	created, err := seedBuiltinRecords(ctx, rt)
	if err != nil {
		return err
	}
	if created == 0 {
		PrintSuccess("Builtin catalog already seeded")
		return nil
	}
	PrintSuccess(fmt.Sprintf("Seeded %d builtin strategies", created))
	return nil
}

func seedBuiltinRecords(ctx context.Context, rt *runtime) (int, error) {
	return strategy.SeedBuiltins(ctx, rt.store, validateRecord)
}
