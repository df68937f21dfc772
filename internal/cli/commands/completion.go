package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewCompletionCommand creates the completion command for shell completions
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate a shell completion script for objrt.

  $ source <(objrt completion bash)
  $ objrt completion zsh > "${fpath[1]}/_objrt"
  $ objrt completion fish | source
  PS> objrt completion powershell | Out-String | Invoke-Expression

Type names for "objrt types --show" are completed from the definition
files on the command line, or from objrt.yaml.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			root := cmd.Root()

			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}

// completeTypeNames completes type names declared in the definition files
// given as args, or configured in objrt.yaml
func completeTypeNames(global *globalOptions) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		files, err := definitionFiles(global, args)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		reg, _, types, err := loadTypes(files, zap.NewNop())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = reg.Name(t)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}
