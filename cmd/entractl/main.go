// Command entractl runs Entra ID administration scripts from the command
// line or as an MCP server.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/deixis/entractl/cmd/entractl/commands"
	"github.com/deixis/entractl/cmd/entractl/internal/clierr"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("entractl: ")

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "entractl: %v\n", err)
		os.Exit(clierr.ExitCodeOf(err))
	}
}
