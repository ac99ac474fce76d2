package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nedpals/nfc-reader-bridge/buildhook"
	"github.com/nedpals/nfc-reader-bridge/buildinfo"
	"github.com/nedpals/nfc-reader-bridge/nfc"
	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// newManager opens reader hardware. Tests replace it with a mock.
var newManager = nfc.NewManager

func init() {
	rootCmd.AddCommand(
		newDevicesCmd(),
		newAddSystemCodesCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached NFC readers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := newManager().ListDevices()
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No NFC readers found")
				return nil
			}

			data := pterm.TableData{{"#", "Device"}}
			for i, device := range devices {
				data = append(data, []string{strconv.Itoa(i + 1), device})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, table)
			return nil
		},
	}
}

func newAddSystemCodesCmd() *cobra.Command {
	var opts buildhook.Options
	cmd := &cobra.Command{
		Use:   "add-system-codes",
		Short: "Write NFC_SYSTEM_CODES into the iOS Info.plist",
		Long: `Reads the NFC_SYSTEM_CODES preference from the prepared iOS config.xml and
writes it to the app's Info.plist as ` + buildhook.SystemCodesKey + `.

Run it after "cordova prepare". It does nothing when ios is not among the
platforms being built or when config.xml already sets the key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := buildhook.AddSystemCodes(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "addSystemCodes: %s\n", outcome)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.ProjectRoot, "project-root", ".", "Cordova project root")
	cmd.Flags().StringSliceVar(&opts.Platforms, "platforms", cordovaPlatforms(), "Platforms being built")
	return cmd
}

// cordovaPlatforms reads the platform list Cordova exports to hook scripts.
func cordovaPlatforms() []string {
	value := os.Getenv("CORDOVA_PLATFORMS")
	if value == "" {
		return []string{"ios"}
	}
	var platforms []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			platforms = append(platforms, p)
		}
	}
	return platforms
}

func newHistoryCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <block-hex>",
		Short: "Decode a transit history block read from service 0x090f",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			block, err := protocol.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("invalid block: %w", err)
			}
			history, err := protocol.DecodeHistory(block)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(history)
			}

			table, err := pterm.DefaultTable.WithData(pterm.TableData{
				{"Date", fmt.Sprintf("%04d-%02d-%02d", history.Year, history.Month, history.Day)},
				{"Boarding station", protocol.FormatID(history.BoardingStationCode)},
				{"Exit station", protocol.FormatID(history.ExitStationCode)},
				{"Balance", strconv.Itoa(history.Balance)},
			}).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, table)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.BuildInfo())
		},
	}
}
