package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweris/assetcache"
)

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Write a stored asset to stdout or a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) (err error) {
	url := args[0]

	m, closeFn, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	h, err := m.CacheURL(cmd.Context(), url)
	if err != nil {
		return err
	}
	if h == "" {
		return fmt.Errorf("%s is not cached", url)
	}

	data, ok := assetcache.Resolve(h)
	if !ok {
		return fmt.Errorf("handle %s was revoked", h)
	}

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		return os.WriteFile(out, data, 0644)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
