// Command vaultd watches a Markdown vault and dispatches declaratively
// configured agents to external CLI tools in response to file-system
// events.
package main

import (
	"os"

	"github.com/rduffy/vaultd/cmd/vaultd/commands"
)

func main() {
	os.Exit(commands.Execute())
}
