/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	serial "github.com/allbin/go-pollserial"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata.

Examples:
  pollserial info /dev/ttyUSB0
  pollserial info pollserial:///dev/ttyACM0

For USB devices, this displays vendor/product IDs, serial numbers, interface
numbers, and other USB-specific metadata extracted from sysfs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := serial.GetPortInfo(args[0])
		if err != nil {
			return fmt.Errorf("getting port info for %s: %w", args[0], err)
		}

		heading := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))

		fmt.Println(heading.Render("Port Information: " + info.Path))
		fmt.Println()
		fmt.Printf("  Name:        %s\n", info.Name)
		fmt.Printf("  URL:         %s\n", info.URL())
		fmt.Printf("  Description: %s\n", info.Description)

		if !info.IsUSB() {
			return nil
		}

		fmt.Println()
		fmt.Println(heading.Render("USB Device Information:"))
		fields := []struct {
			label string
			value string
		}{
			{"Vendor ID", info.VendorID},
			{"Product ID", info.ProductID},
			{"Serial", info.SerialNumber},
			{"Interface", info.InterfaceNumber},
			{"Bus", info.BusNumber},
			{"Device", info.DeviceNumber},
			{"Manufacturer", info.Manufacturer},
			{"Product", info.Product},
		}
		for _, f := range fields {
			if f.value != "" {
				fmt.Printf("  %-13s %s\n", f.label+":", f.value)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
