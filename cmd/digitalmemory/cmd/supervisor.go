package cmd

import (
	"os"

	"github.com/dzheng/digitalmemory/internal/rebuild"
)

// fullRebuildCommand points the rebuild supervisor's child-process path
// at this same binary's `index` subcommand, so a full rebuild always
// runs as a fresh process (spec section 4.11) regardless of whether it
// was triggered by `digitalmemory rebuild` or by a running server.
func fullRebuildCommand() rebuild.FullRebuildCommand {
	exe, err := os.Executable()
	if err != nil {
		exe = "digitalmemory"
	}
	return rebuild.FullRebuildCommand{Path: exe, Args: []string{"index"}}
}
