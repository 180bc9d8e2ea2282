package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Serve    *ServeCommand
	Status   *StatusCommand
	Sessions *SessionsCommand
	Search   *SearchCommand
	Export   *ExportCommand
	Prune    *PruneCommand
	Purge    *PurgeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "auditrec"
	parser.LongDescription = "Local audit capture agent: records allow-listed browser interactions into reviewable session logs."

	cmds := &commands{
		Serve:    &ServeCommand{globals: &globals, version: version},
		Status:   &StatusCommand{globals: &globals, version: version},
		Sessions: &SessionsCommand{globals: &globals, version: version},
		Search:   &SearchCommand{globals: &globals, version: version},
		Export:   &ExportCommand{globals: &globals, version: version},
		Prune:    &PruneCommand{globals: &globals, version: version},
		Purge:    &PurgeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("serve", "Start the capture daemon", "Start the audit capture daemon (local HTTP service the extension reports to).", cmds.Serve)
	parser.AddCommand("status", "Show daemon health and statistics", "Show daemon health, database statistics, and recording state.", cmds.Status)
	parser.AddCommand("sessions", "List recording sessions", "List recording sessions, newest first, with message counts.", cmds.Sessions)
	parser.AddCommand("search", "Search captured messages", "Search captured audit messages by keyword, with optional filters.", cmds.Search)
	parser.AddCommand("export", "Export a session as JSON Lines", "Export every message of a session as JSON Lines, for review tooling.", cmds.Export)
	parser.AddCommand("prune", "Apply retention pruning", "Apply retention pruning to remove old messages.", cmds.Prune)
	parser.AddCommand("purge", "Delete ALL captured data", "Delete ALL captured data. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the auditrec CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("auditrec %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
