package main

import (
	"github.com/spf13/cobra"

	"github.com/nevindra/seer/mcp"
	"github.com/nevindra/seer/tarot"
)

func newTarotMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tarot-mcp",
		Short: "Serve the tarot tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := mcp.New(tarot.ServerName, tarot.ServerVersion, mcp.WithServerLogger(g.logger()))
			tarot.Register(srv, tarot.NewReader(tarot.NewDeck()))
			return srv.Serve(cmd.Context())
		},
	}
}
