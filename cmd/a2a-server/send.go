// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/client"
)

func newSendCommand() *cobra.Command {
	var (
		url       string
		taskID    string
		contextID string
		stream    bool
	)
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send a text message to a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(url)
			msg := a2a.NewTextMessage(a2a.RoleUser, strings.Join(args, " "))
			msg.TaskID = taskID
			msg.ContextID = contextID
			params := &a2a.MessageSendParams{Message: msg}
			out := cmd.OutOrStdout()

			if !stream {
				res, err := c.SendMessage(cmd.Context(), params)
				if err != nil {
					return err
				}
				return printResult(out, res)
			}
			for ev, err := range c.SendMessageStream(cmd.Context(), params) {
				if err != nil {
					return err
				}
				if err := printEvent(out, ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&url, "url", "http://localhost:8080/", "JSON-RPC endpoint")
	flags.StringVar(&taskID, "task", "", "continue an existing task")
	flags.StringVar(&contextID, "context", "", "context of the message")
	flags.BoolVar(&stream, "stream", false, "stream the task events")
	return cmd
}

func partsText(parts []a2a.Part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func printResult(w io.Writer, res a2a.SendMessageResult) error {
	switch v := res.(type) {
	case *a2a.Task:
		if _, err := fmt.Fprintf(w, "task %s (context %s): %s\n", v.ID, v.ContextID, v.Status.State); err != nil {
			return err
		}
		for _, art := range v.Artifacts {
			if _, err := fmt.Fprintf(w, "  %s: %s\n", art.Name, partsText(art.Parts)); err != nil {
				return err
			}
		}
		return nil
	case *a2a.Message:
		_, err := fmt.Fprintf(w, "%s: %s\n", v.Role, partsText(v.Parts))
		return err
	}
	return fmt.Errorf("unexpected result %T", res)
}

func printEvent(w io.Writer, ev a2a.Event) error {
	var err error
	switch v := ev.(type) {
	case *a2a.TaskStatusUpdateEvent:
		_, err = fmt.Fprintf(w, "[%s] status %s\n", v.TaskID, v.Status.State)
	case *a2a.TaskArtifactUpdateEvent:
		_, err = fmt.Fprintf(w, "[%s] artifact %s: %q\n", v.TaskID, v.Artifact.Name, partsText(v.Artifact.Parts))
	default:
		err = printResult(w, ev.(a2a.SendMessageResult))
	}
	return err
}
