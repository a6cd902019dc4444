package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/smazurov/udevd/internal/logging"
	"github.com/smazurov/udevd/internal/sysfs"
)

func newInfoCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Query sysfs attributes for a device node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("device path required: pass --path or a positional argument")
			}
			return runInfo(path)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Path to the device node to query")

	return cmd
}

func runInfo(path string) error {
	logger := logging.GetLogger("info")

	info, err := sysfs.QueryDevice(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "udevadm: %v\n", err)
		return err
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		logger.Info(fmt.Sprintf("%s=%s", k, info[k]))
	}

	return nil
}
