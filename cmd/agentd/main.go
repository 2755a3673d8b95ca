// Command agentd is the agentd entrypoint: a public CLI
// (help/readconfig/start, -F foreground) grounded on cobra the way
// Synnergy's cmd/synnergy/main.go builds its command tree, plus a hidden
// -P <subcommand> dispatch used only for the supervisor's privsep
// re-exec.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockwell/agentd/internal/agenterr"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if priv, ok := extractPrivateFlag(args); ok {
		return runPrivate(priv)
	}

	foreground := false
	root := &cobra.Command{
		Use:           "agentd",
		Short:         "privilege-separated blockchain node agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&foreground, "foreground", "F", false, "run in the foreground instead of daemonizing")

	root.AddCommand(readconfigCmd())
	root.AddCommand(startCmd(&foreground))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentd:", err)
		if agenterr.Is(err, agenterr.KindPidFileLocked) {
			return 2
		}
		return 1
	}
	return 0
}

// extractPrivateFlag scans for the hidden "-P <subcommand> [args...]" form
// used only by the re-exec chain the supervisor and its children perform.
// It is handled outside cobra's own flag parser because it must never
// appear in generated help text. Everything after the subcommand name is
// returned as-is for the subcommand to interpret.
func extractPrivateFlag(args []string) ([]string, bool) {
	for i, a := range args {
		if a == "-P" && i+1 < len(args) {
			return args[i+1:], true
		}
	}
	return nil, false
}

func readconfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "readconfig",
		Short: "validate and print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doReadconfig()
		},
	}
}

func startCmd(foreground *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start the supervised agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doStart(*foreground)
		},
	}
}

// runPrivate dispatches an undocumented -P <subcommand> re-exec. Unknown
// values produce a generic error. "bootstrap" and "childinit" are
// intermediate hops in the privilege-separation chain (root fork ->
// bootstrap -> supervisor; supervisor fork -> childinit -> service) and
// take their own trailing arguments.
func runPrivate(args []string) int {
	sub, rest := args[0], args[1:]
	switch sub {
	case "bootstrap":
		return privateBootstrap(rest)
	case "childinit":
		return privateChildinit(rest)
	case "supervisor":
		return privateSupervisor()
	case "dataservice":
		return privateDataservice()
	case "randomservice":
		return privateRandomservice()
	case "authservice":
		return privateAuthservice()
	case "canonizationservice":
		return privateCanonizationservice()
	case "protocolservice":
		return privateProtocolservice()
	case "listenservice":
		return privateListenservice()
	default:
		fmt.Fprintln(os.Stderr, agenterr.New(agenterr.KindInvalidParameter, "unknown private sub-command: "+sub))
		return 1
	}
}
