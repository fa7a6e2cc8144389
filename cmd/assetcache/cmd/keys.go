package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List stored asset URLs",
	Args:  cobra.NoArgs,
	RunE:  runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) (err error) {
	m, closeFn, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	keys := m.Keys()
	for _, k := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), k)
	}
	if len(keys) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "(no entries)")
	}
	return nil
}
