package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mastercactapus/echem/method"
	"github.com/mastercactapus/echem/transport"
	"github.com/spf13/cobra"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List the available methods and their parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printMethods(cmd.OutOrStdout(), method.Default.Describe())
	},
}

var portsFlags struct {
	usb    bool
	serial string
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports an instrument or GPIB controller may be attached to",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filters []transport.PortFilter
		if portsFlags.usb {
			filters = append(filters, transport.USBOnly)
		}
		if portsFlags.serial != "" {
			filters = append(filters, transport.SerialNumber(portsFlags.serial))
		}
		ports, err := transport.ListPorts(filters...)
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			log.Warn("no ports found")
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p.String())
		}
		return nil
	},
}

func init() {
	portsCmd.Flags().BoolVar(&portsFlags.usb, "usb", false, "Only list USB ports.")
	portsCmd.Flags().StringVar(&portsFlags.serial, "serial", "", "Only list the USB port with this serial number.")
}

func printMethods(w io.Writer, infos []method.Info) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, info := range infos {
		fmt.Fprintln(tw, headerStyle.Render(fmt.Sprintf("%s (%s)", info.ID, info.Name)))
		fmt.Fprintf(tw, "  mode\t%s\n", info.Mode)
		fmt.Fprintf(tw, "  axes\t%s vs %s\n", info.YLabel, info.XLabel)
		for _, p := range info.Parameters {
			fmt.Fprintf(tw, "  %s\t%g\t%s\n", p.Name, p.Default, p.Label)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
