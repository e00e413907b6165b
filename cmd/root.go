package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/AnyUserName/photofinish/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0"
	verbose   bool
	benchmark bool
)

var rootCmd = &cobra.Command{
	Use:   "photofinish",
	Short: "Colour-managed photo finishing for web and print",
	Long: `photofinish turns a directory of camera originals into finished outputs
for a set of destinations: cropped and resized with a Lanczos filter,
sharpened, converted to the destination colour profile and dithered
down to 8 bits where the output format needs it.

Output filenames are content-addressed: <name>.<target>.<hash>.ext`,
	Version: version,
	PersistentPreRun: func(*cobra.Command, []string) {
		logging.SetLogger(logging.NewText(os.Stderr, verbose))
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&benchmark, "benchmark", false, "log the duration of every processing stage")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"photofinish %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// logVerbose logs a debug message; it is shown only when --verbose is set.
func logVerbose(format string, args ...any) {
	logging.Logger().Debug(fmt.Sprintf(format, args...))
}
