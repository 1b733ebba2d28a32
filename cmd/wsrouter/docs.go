package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/wsrouter/internal/config"
)

func docsCmd() *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Print the AsyncAPI document of the demo application",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return writeDocs(cmd.OutOrStdout(), cfg, pretty)
		},
	}

	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "Indent the output")

	return cmd
}

func writeDocs(w io.Writer, cfg *config.Config, pretty bool) error {
	server, _, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	doc, err := server.Docs()
	if err != nil {
		return err
	}
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, doc, "", "  "); err != nil {
			return err
		}
		doc = buf.Bytes()
	}
	doc = append(doc, '\n')
	_, err = w.Write(doc)
	return err
}
