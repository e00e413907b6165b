package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AnyUserName/photofinish/internal/codec"
	"github.com/AnyUserName/photofinish/internal/destination"
	"github.com/AnyUserName/photofinish/internal/resample"
	"github.com/spf13/cobra"
)

var destinationsConfig string

var destinationsCmd = &cobra.Command{
	Use:   "destinations",
	Short: "List the built-in destinations, or those of a YAML file",
	Args:  cobra.NoArgs,
	RunE:  runDestinations,
}

func init() {
	destinationsCmd.Flags().StringVarP(&destinationsConfig, "config", "c", "", "YAML file with additional destinations")
	rootCmd.AddCommand(destinationsCmd)
}

func runDestinations(_ *cobra.Command, _ []string) error {
	all := map[string]destination.Destination{}
	for _, n := range destination.Names() {
		d, _ := destination.Get(n)
		all[n] = d
	}
	if destinationsConfig != "" {
		loaded, err := destination.LoadFile(destinationsConfig)
		if err != nil {
			return err
		}
		for n, d := range loaded {
			all[n] = d
		}
	}

	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)

	registry := codec.NewRegistry()
	fmt.Println()
	for _, n := range names {
		d := all[n]
		status := "ok"
		if err := d.Validate(); err != nil {
			status = "invalid: " + err.Error()
		} else if _, err := registry.Lookup(d.OutputFormat()); err != nil {
			status = "unavailable: " + err.Error()
		}
		fmt.Printf("  %-12s %-5s %2d-bit  %s\n", n, d.OutputFormat(), d.BitDepth(), status)
		if d.NoResize {
			fmt.Println("      full size")
			continue
		}
		for _, t := range d.Frames() {
			size := ""
			if t.Size > 0 {
				size = fmt.Sprintf("  (%g in)", t.Size)
			}
			fmt.Printf("      %-12s %gx%g%s\n", t.Name, t.Width, t.Height, size)
		}
	}
	fmt.Println()
	fmt.Printf("  Encoders: %s\n", strings.Join(registry.Available(), ", "))
	fmt.Printf("  Filters:  %s\n", strings.Join(resample.FilterNames(), ", "))
	fmt.Println()
	return nil
}
