package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lightnote/admission"
	"github.com/lightnote/admission/internal/config"
)

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "Show the effective admission policies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			renderPolicies(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func renderPolicies(w io.Writer, cfg *config.Config) {
	policies := cfg.Policies()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Action", "Quota", "Window", "Message"})
	for _, action := range []admission.Action{admission.ActionAnalyze, admission.ActionRewrite} {
		p := policies[action]
		t.AppendRow(table.Row{string(action), p.Quota, p.Window.String(), p.Message})
	}
	t.Render()
	fmt.Fprintf(w, "store: %s, %s\n", cfg.Store.Driver, storeNote(cfg))
}

func storeNote(cfg *config.Config) string {
	if cfg.Store.Driver == "redis" {
		return fmt.Sprintf("shared via %s (%s)", cfg.Redis.Addr, cfg.Redis.Prefix)
	}
	return "per process"
}
