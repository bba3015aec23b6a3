package cmd

import (
	"github.com/spf13/cobra"
	"recording-service/config"
	server2 "recording-service/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server and finalization workers",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
