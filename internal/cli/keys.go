package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"siecore/apps/console/internal/credential"
	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/provider"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage AI provider credentials",
	Long: `Manage the credentials the fallback engine cascades over.

Examples:
  console keys list --active-only
  console keys add --provider gemini --key AIza... --priority 1
  console keys disable 3
  console keys rm 3`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials in priority order",
	RunE: func(cmd *cobra.Command, args []string) error {
		activeOnly, _ := cmd.Flags().GetBool("active-only")
		reveal, _ := cmd.Flags().GetBool("reveal")

		srv, err := openServer()
		if err != nil {
			return err
		}
		defer srv.Close()

		items, err := srv.Keys().List(cmd.Context(), activeOnly)
		if err != nil {
			return err
		}
		return renderKeys(cmd.OutOrStdout(), items, reveal, srv.Keys().Threshold())
	},
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		providerID, _ := cmd.Flags().GetString("provider")
		key, _ := cmd.Flags().GetString("key")
		label, _ := cmd.Flags().GetString("label")
		priority, _ := cmd.Flags().GetInt("priority")

		srv, err := openServer()
		if err != nil {
			return err
		}
		defer srv.Close()

		created, err := srv.Keys().Add(cmd.Context(), credential.AddInput{
			Provider: providerID,
			KeyValue: key,
			Label:    label,
			Priority: priority,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added key %d (%s %s)\n", created.ID, created.Provider, provider.MaskKey(created.KeyValue))
		return nil
	},
}

var keysRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseKeyID(args[0])
		if err != nil {
			return err
		}
		srv, err := openServer()
		if err != nil {
			return err
		}
		defer srv.Close()

		if err := srv.Keys().Remove(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed key %d\n", id)
		return nil
	},
}

var keysEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Reactivate a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeyActive(cmd, args[0], true)
	},
}

var keysDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Take a credential out of rotation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeyActive(cmd, args[0], false)
	},
}

func init() {
	keysListCmd.Flags().Bool("active-only", false, "only show active credentials")
	keysListCmd.Flags().Bool("reveal", false, "print full key values")

	keysAddCmd.Flags().String("provider", string(domain.ProviderGemini), "provider: gemini, openrouter, deepseek")
	keysAddCmd.Flags().String("key", "", "API key value")
	keysAddCmd.Flags().String("label", "", "free-form label")
	keysAddCmd.Flags().Int("priority", 1, "cascade order, lower runs first")
	_ = keysAddCmd.MarkFlagRequired("key")

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysAddCmd)
	keysCmd.AddCommand(keysRemoveCmd)
	keysCmd.AddCommand(keysEnableCmd)
	keysCmd.AddCommand(keysDisableCmd)
}

func setKeyActive(cmd *cobra.Command, rawID string, active bool) error {
	id, err := parseKeyID(rawID)
	if err != nil {
		return err
	}
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	updated, err := srv.Keys().SetActive(cmd.Context(), id, active)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "key %d is now %s\n", updated.ID, keyStatus(updated))
	return nil
}

func parseKeyID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid key id %q", raw)
	}
	return id, nil
}

// renderKeys prints one row per credential and a footer naming the error
// count at which a key is taken out of rotation.
func renderKeys(w io.Writer, items []domain.Credential, reveal bool, threshold int) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "no keys configured")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tKEY\tLABEL\tPRIORITY\tUSES\tERRORS\tSTATUS")
	for _, item := range items {
		key := item.KeyValue
		if !reveal {
			key = provider.MaskKey(key)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			item.ID, item.Provider, key, item.Label, item.Priority, item.UsageCount, item.ErrorCount, keyStatus(item))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "keys are disabled after %d consecutive errors\n", threshold)
	return err
}

func keyStatus(item domain.Credential) string {
	if item.IsActive {
		return color.New(color.FgGreen).Sprint("active")
	}
	return color.New(color.FgRed).Sprint("inactive")
}
