/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strings"

	serial "github.com/allbin/go-pollserial"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

This command scans /dev for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)
- And other platform-specific serial devices

Virtual terminals and pseudo-terminals are excluded from the listing.
With --url the ports are printed as pollserial:// URLs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serial.ListPorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")
		asURL, _ := cmd.Flags().GetBool("url")

		infos, err := filterPorts(ports, filterType)
		if err != nil {
			return err
		}

		if len(infos) == 0 {
			if filterType != "" && filterType != "all" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return nil
		}

		if tableFormat {
			renderTable(infos)
			return nil
		}
		for _, info := range infos {
			if asURL {
				fmt.Println(info.URL())
			} else {
				fmt.Println(info.Path)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	listCmd.Flags().BoolP("url", "u", false, "Print pollserial:// URLs instead of device paths")
}

// filterPorts resolves port details and keeps those matching filterType
func filterPorts(ports []string, filterType string) ([]*serial.PortInfo, error) {
	filterType = strings.ToLower(filterType)
	switch filterType {
	case "", "all", "usb", "standard", "arm":
	default:
		return nil, fmt.Errorf("unknown filter %q (valid: usb, standard, arm, all)", filterType)
	}

	var infos []*serial.PortInfo
	for _, port := range ports {
		info, err := serial.GetPortInfo(port)
		if err != nil {
			logger.Debug().Err(err).Str("port", port).Msg("skipping port")
			continue
		}
		if matchesFilter(info, filterType) {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func matchesFilter(info *serial.PortInfo, filterType string) bool {
	name := info.Name
	switch filterType {
	case "usb":
		return strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM")
	case "standard":
		return strings.HasPrefix(name, "ttyS") && !strings.HasPrefix(name, "ttySAC")
	case "arm":
		return strings.HasPrefix(name, "ttyAMA")
	default:
		return true
	}
}

// renderTable renders the port list in a styled static table format
func renderTable(infos []*serial.PortInfo) {
	fmt.Printf("Found %d serial port(s):\n\n", len(infos))

	urlWidth := 32
	descWidth := 24
	usbWidth := 10

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240"))

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s",
		urlWidth, "URL",
		descWidth, "Description",
		usbWidth, "USB ID")
	fmt.Println(headerStyle.Render(header))

	for _, info := range infos {
		usbID := "-"
		if info.IsUSB() {
			usbID = info.VendorID + ":" + info.ProductID
		}
		row := fmt.Sprintf("%-*s %-*s %-*s",
			urlWidth, info.URL(),
			descWidth, info.Description,
			usbWidth, usbID)
		fmt.Println(cellStyle.Render(row))
	}
}
