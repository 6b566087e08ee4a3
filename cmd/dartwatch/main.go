package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

const longHelp = `Watch OpenDART for new disclosures of one corporation and announce them
on Telegram.

Each run fetches the newest disclosure, compares its receipt number with the
one stored in the state file, and on a change stores the new number and then
posts "📌 <title>" with the viewer link. In test mode every run also sends a
heartbeat so operators can see the schedule is alive.

Configuration comes from an optional file (--config, JSON/YAML/TOML), then the
environment, then flags:
  DART_API_KEY, DART_CORP_CODE, TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID
  DARTWATCH_MODE, DARTWATCH_STATE_PATH, DARTWATCH_LOG_LEVEL, ...`

var exampleUsage = strings.TrimSpace(`
  dartwatch                              # one check, e.g. from cron
  dartwatch run --mode test --include-logs
  dartwatch watch --schedule "*/10 * * * *" --config /etc/dartwatch.yaml
  dartwatch state`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	opts := &cliOptions{getenv: getenv}
	runCmd := newRunCmd(opts)

	root := &cobra.Command{
		Use:           "dartwatch",
		Short:         "Announce new OpenDART disclosures on Telegram",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		// Bare invocation behaves like "run" so existing cron lines keep working.
		RunE: runCmd.RunE,
	}
	opts.bind(root.PersistentFlags())

	root.AddCommand(runCmd, newWatchCmd(opts), newStateCmd(opts))
	return root
}

func main() {
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
