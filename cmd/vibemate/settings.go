package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"vibemate.dev/vibemate/internal/profile"
)

func newShowCmd(opts *options) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show your saved profile and companion",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			p, persona, complete := a.repo.Load(ctx)
			if p == nil && persona == nil {
				fmt.Fprintln(a.out, `Nothing saved yet. Run "vibemate setup" to get started.`)
				return nil
			}

			fmt.Fprintln(a.out, a.styles.Title.Render("Saved locally"))
			fmt.Fprintln(a.out, a.renderer.Render(profileSummary(p, persona)))
			status := "incomplete"
			if complete {
				status = "complete"
			}
			fmt.Fprintln(a.out, a.styles.Muted.Render("Setup "+status))
			if persona != nil {
				fmt.Fprintln(a.out, a.styles.Subtitle.Render(profile.PreviewGreeting(p, *persona)))
			}

			if !remote || p == nil || p.UserID == "" {
				return nil
			}
			serverProfile, err := a.client.GetUser(ctx, p.UserID)
			if err != nil {
				return fmt.Errorf("failed to fetch profile from backend: %w", err)
			}
			var serverPersona *profile.PersonaConfig
			if bot, err := a.client.GetBot(ctx, p.UserID); err == nil {
				serverPersona = &bot
			}
			fmt.Fprintln(a.out, a.styles.Title.Render("Saved on the server"))
			fmt.Fprintln(a.out, a.renderer.Render(profileSummary(&serverProfile, serverPersona)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Also show the copy stored by the backend")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your profile and companion settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			a.repo.Load(cmd.Context())
			data, err := encodeExport(a.repo.Export(time.Now()), format)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = a.out.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			a.toaster.Notify("Data Exported", "Your VibeMate data has been saved to "+output+".")
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Export format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func encodeExport(exp profile.Export, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(exp, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode export: %w", err)
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		data, err := yaml.Marshal(exp)
		if err != nil {
			return nil, fmt.Errorf("failed to encode export: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func newResetCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete your local profile, companion and setup state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !yes {
				answer, err := a.ask("Are you sure you want to reset all data? This action cannot be undone. Type yes to confirm", "")
				if err != nil && err != io.EOF {
					return err
				}
				if strings.ToLower(answer) != "yes" {
					fmt.Fprintln(a.out, "Nothing was changed.")
					return nil
				}
			}

			a.repo.Reset(cmd.Context())
			a.toaster.Notify("Data Reset", `All data has been cleared. Run "vibemate setup" to start again.`)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
