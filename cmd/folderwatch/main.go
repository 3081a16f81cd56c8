// Package main provides the folderwatch CLI application.
//
// folderwatch watches a directory for changes, prints them as they happen,
// records them in a persistent journal and optionally serves them over
// HTTP and WebSocket.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run() error {
	// Define global flags.
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version information")

	// Parse command.
	flag.Parse()

	// Handle version flag.
	if *showVersion {
		fmt.Printf("folderwatch %s\n", version)
		return nil
	}

	// Get command.
	args := flag.Args()
	if len(args) == 0 {
		return showUsage()
	}

	command := args[0]

	switch command {
	case "watch":
		return runWatchCommand(*configPath, args[1:])
	case "history":
		return runHistoryCommand(*configPath, args[1:])
	case "summary":
		return runSummaryCommand(*configPath, args[1:])
	case "config":
		return runConfigCommand(*configPath, args[1:])
	case "help":
		return showUsage()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runWatchCommand runs the watch command.
func runWatchCommand(configPath string, args []string) error {
	cmd, err := parseWatchFlags(configPath, args, flag.ExitOnError)
	if err != nil {
		return err
	}
	return cmd.Execute()
}

// parseWatchFlags parses the watch command flags.
func parseWatchFlags(configPath string, args []string, handling flag.ErrorHandling) (*watchCommand, error) {
	fs := flag.NewFlagSet("watch", handling)
	path := fs.String("path", "", "directory to watch (default: from config, else .)")
	recursive := fs.Bool("recursive", false, "also watch subdirectories")
	filter := fs.String("filter", "", "change categories (comma-separated: file_name,dir_name,attributes,size,last_write,last_access,creation,security,all)")
	format := fs.String("format", "", "output format (text, simple, json)")
	color := fs.String("color", "", "colour mode (auto, always, never)")
	listen := fs.String("listen", "", "serve the HTTP API on this address (e.g. 127.0.0.1:8765)")
	noJournal := fs.Bool("no-journal", false, "do not record changes")
	reload := fs.Bool("reload", false, "reload the configuration file when it changes")
	refresh := fs.Duration("refresh", 0, "log a statistics line at this interval (e.g. 30s, 0 disables)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	recursiveSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "recursive" {
			recursiveSet = true
		}
	})

	return &watchCommand{
		path:         *path,
		recursive:    *recursive,
		recursiveSet: recursiveSet,
		filter:       splitList(*filter),
		format:       *format,
		color:        *color,
		listen:       *listen,
		noJournal:    *noJournal,
		reload:       *reload,
		refresh:      *refresh,
		configPath:   configPath,
		out:          os.Stdout,
	}, nil
}

// runHistoryCommand runs the history command.
func runHistoryCommand(configPath string, args []string) error {
	cmd, err := parseHistoryFlags(configPath, args, flag.ExitOnError)
	if err != nil {
		return err
	}
	return cmd.Execute()
}

// parseHistoryFlags parses the history command flags.
func parseHistoryFlags(configPath string, args []string, handling flag.ErrorHandling) (*historyCommand, error) {
	fs := flag.NewFlagSet("history", handling)
	limit := fs.Int("limit", 50, "number of entries to show (0 shows all)")
	since := fs.Uint64("since", 0, "only entries after this sequence number")
	format := fs.String("format", "", "output format (text, simple, json)")
	remote := fs.String("remote", "", "read from the HTTP API of a running watch (e.g. 127.0.0.1:8765)")
	clearAll := fs.Bool("clear", false, "remove every recorded entry")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &historyCommand{
		limit:      *limit,
		since:      *since,
		format:     *format,
		remote:     *remote,
		clear:      *clearAll,
		configPath: configPath,
		out:        os.Stdout,
	}, nil
}

// runSummaryCommand runs the summary command.
func runSummaryCommand(configPath string, args []string) error {
	cmd, err := parseSummaryFlags(configPath, args, flag.ExitOnError)
	if err != nil {
		return err
	}
	return cmd.Execute()
}

// parseSummaryFlags parses the summary command flags.
func parseSummaryFlags(configPath string, args []string, handling flag.ErrorHandling) (*summaryCommand, error) {
	fs := flag.NewFlagSet("summary", handling)
	top := fs.Int("top", 0, "show the N most changed names")
	groupBy := fs.String("group-by", "", "group by dimensions (comma-separated: action,directory,date,hour)")
	format := fs.String("format", "", "output format (text, simple, json)")
	compact := fs.Bool("compact", false, "compact output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &summaryCommand{
		top:        *top,
		groupBy:    splitList(*groupBy),
		format:     *format,
		compact:    *compact,
		configPath: configPath,
		out:        os.Stdout,
	}, nil
}

// runConfigCommand runs the config command.
func runConfigCommand(configPath string, args []string) error {
	cmd := &configCommand{
		configPath: configPath,
		out:        os.Stdout,
		in:         os.Stdin,
	}
	return cmd.Execute(args)
}

// splitList splits a comma-separated flag value.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// showUsage displays usage information.
func showUsage() error {
	usage := `folderwatch - directory change monitoring tool

Usage:
  folderwatch [flags] <command> [command flags]

Commands:
  watch       Watch a directory and print changes as they happen
  history     Show recorded changes
  summary     Display change statistics
  config      Configuration management (show, path, reset)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -version    Show version information

Watch Command Flags:
  -path       Directory to watch
  -recursive  Also watch subdirectories
  -filter     Change categories (comma-separated)
  -format     Output format (text, simple, json)
  -color      Colour mode (auto, always, never)
  -listen     Serve the HTTP API on this address
  -no-journal Do not record changes
  -reload     Reload the configuration file when it changes
  -refresh    Log a statistics line at this interval

History Command Flags:
  -limit      Number of entries to show (default: 50, 0 shows all)
  -since      Only entries after this sequence number
  -format     Output format (text, simple, json)
  -remote     Read from the HTTP API of a running watch
  -clear      Remove every recorded entry

Summary Command Flags:
  -top        Show the N most changed names
  -group-by   Group by dimensions (comma-separated: action,directory,date,hour)
  -format     Output format (text, simple, json)
  -compact    Compact output

Examples:
  # Watch the current directory
  folderwatch watch

  # Watch a tree, names and writes only
  folderwatch watch -path /srv/inbox -recursive -filter file_name,last_write

  # Watch and serve the HTTP/WebSocket API
  folderwatch watch -listen 127.0.0.1:8765

  # Show the last 20 recorded changes
  folderwatch history -limit 20

  # Read history from a running watch
  folderwatch history -remote 127.0.0.1:8765

  # Show statistics grouped by directory
  folderwatch summary -group-by directory -top 10

Version: %s
`

	fmt.Printf(usage, version)
	return nil
}
