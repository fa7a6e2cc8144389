package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache <url>...",
	Short: "Download assets into the store",
	Long:  "Download every URL not already stored. Fails without recording anything if any download fails.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCache,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}

func runCache(cmd *cobra.Command, args []string) (err error) {
	m, closeFn, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	before := len(m.Keys())
	if err := m.ManualCache(cmd.Context(), args); err != nil {
		return fmt.Errorf("cache failed: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Done. %d new, %d total.\n", len(m.Keys())-before, len(m.Keys()))
	return nil
}
