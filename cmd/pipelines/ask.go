package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	pipelines "github.com/neuromechanist/openwebui-piplines"
	"github.com/neuromechanist/openwebui-piplines/variants"
)

func modelsCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the server exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			for _, p := range a.registry.List() {
				for _, m := range p.Models() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.ID, m.Name)
				}
			}
			return nil
		},
	}
}

func askCMD(cfgPath *string) *cobra.Command {
	var model string
	var system string
	var ask = &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one question through a pipeline and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			p, ok := a.registry.Get(model)
			if !ok {
				return fmt.Errorf("unknown model %q", model)
			}

			question := strings.Join(args, " ")
			var messages []pipelines.ChatMessage
			if system != "" {
				messages = append(messages, pipelines.ChatMessage{Role: pipelines.RoleSystem, Content: pipelines.Text(system)})
			}
			messages = append(messages, pipelines.ChatMessage{Role: pipelines.RoleUser, Content: pipelines.Text(question)})

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if a.cfg.Server.RequestTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.cfg.Server.RequestTimeout)
				defer cancel()
			}

			if err := a.registry.Startup(ctx); err != nil {
				return err
			}
			defer func() { _ = a.registry.Shutdown(context.Background()) }()

			answer, err := p.Execute(ctx, question, model, messages, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	ask.Flags().StringVarP(&model, "model", "m", variants.DirectID, "pipeline id")
	ask.Flags().StringVar(&system, "system", "", "optional system message")

	return ask
}
