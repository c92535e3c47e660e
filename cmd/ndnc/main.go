package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ndn-dise/ndnc-go/tools"
)

const banner = `
  _   _ ____  _   _
 | \ | |  _ \| \ | | ___
 |  \| | | | |  \| |/ __|
 | |\  | |_| | |\  | (__
 |_| \_|____/|_| \_|\___|

NDN file transfer over an NDN-DPDK forwarder
`

var cmdRoot = &cobra.Command{
	Use:   "ndnc",
	Short: "NDN file transfer over an NDN-DPDK forwarder",
	Long:  banner[1:],
}

func init() {
	cobra.EnableCommandSorting = false
	cmdRoot.Root().CompletionOptions.HiddenDefaultCmd = true
	cmdRoot.PersistentFlags().BoolP("help", "h", false, "Print usage")
	cmdRoot.PersistentFlags().Lookup("help").Hidden = true

	cmdRoot.AddGroup(&cobra.Group{ID: "tools", Title: "File Transfer"})
	cmdRoot.AddCommand(tools.CmdGet())
	cmdRoot.AddCommand(tools.CmdList())
	cmdRoot.AddCommand(tools.CmdServe())
	cmdRoot.AddCommand(tools.CmdPing())
	cmdRoot.AddCommand(tools.CmdPingServer())
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		os.Exit(2)
	}
}
