package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ar10000/sitechat/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sitechatd",
		Short: "Sitechat daemon and CLI",
		Long:  "Sitechat daemon for running the assistant API server and building the vector index",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.IndexCmd())
	rootCmd.AddCommand(cli.AskCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
