// Command studysearch indexes course lectures and serves hybrid semantic
// search over them, either as an MCP server on stdio or from the shell.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
