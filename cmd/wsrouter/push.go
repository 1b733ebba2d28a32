package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/wsrouter/internal/bridge"
	"github.com/luciancaetano/wsrouter/internal/config"
)

func pushCmd() *cobra.Command {
	var (
		typ     string
		payload string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "push <topic>",
		Short: "Push a message to topic subscribers of a running server over NATS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.NATSURL == "" {
				return fmt.Errorf("%s - NATS_URL is required for push", logPrefix)
			}

			var body json.RawMessage
			if payload != "" {
				body = json.RawMessage(payload)
				if !json.Valid(body) {
					return fmt.Errorf("%s - payload is not valid JSON", logPrefix)
				}
			}

			nc, err := bridge.Connect(cfg.NATSURL, cfg.NATSName+"-cli", newLogger(cfg))
			if err != nil {
				return err
			}
			defer nc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := bridge.NewPublisher(nc, cfg.NATSSubject).Request(ctx, args[0], typ, body); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s to %s\n", typ, args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", typeAlert, "Operation type")
	cmd.Flags().StringVarP(&payload, "payload", "p", `{"message":"foobar"}`, "JSON payload")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Time to wait for the server")

	return cmd
}
