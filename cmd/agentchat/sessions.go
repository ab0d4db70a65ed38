package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

const (
	sessionsPath    = "/api/chat/sessions"
	sessionsTimeout = 10 * time.Second
)

// sessionList is the relay's sessions response; entries are whatever the
// gateway reports, so only well-known keys are picked out for display.
type sessionList struct {
	Sessions []map[string]any `json:"sessions"`
	Note     string           `json:"note,omitempty"`
}

func newSessionsCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List gateway sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), sessionsTimeout)
			defer cancel()

			list, raw, err := fetchSessions(ctx, http.DefaultClient, opts.baseURL)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "json":
				_, err = fmt.Fprintln(out, string(raw))
				return err
			case "", "table":
				writeSessionsTable(out, list)
				return nil
			default:
				return fmt.Errorf("unsupported format: %s", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table|json)")
	return cmd
}

func fetchSessions(ctx context.Context, client *http.Client, baseURL string) (sessionList, []byte, error) {
	var list sessionList

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+sessionsPath, nil)
	if err != nil {
		return list, nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return list, nil, fmt.Errorf("failed to reach relay: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return list, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return list, nil, fmt.Errorf("relay returned %s", resp.Status)
	}
	if err := sonic.ConfigStd.Unmarshal(raw, &list); err != nil {
		return list, nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return list, raw, nil
}

func writeSessionsTable(w io.Writer, list sessionList) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 40},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
	})
	tw.AppendHeader(table.Row{"Key", "Label", "Model", "Updated"})

	for _, s := range list.Sessions {
		tw.AppendRow(table.Row{
			pick(s, "key", "sessionKey", "id"),
			pick(s, "label", "displayName", "title"),
			pick(s, "model"),
			formatUpdated(s["updatedAt"]),
		})
	}
	if len(list.Sessions) == 0 {
		empty := "(no sessions)"
		if list.Note != "" {
			empty = "(" + list.Note + ")"
		}
		tw.AppendRow(table.Row{"-", empty, "-", "-"})
	}

	_ = tw.Render()
}

// pick returns the first string-ish value among keys
func pick(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return "-"
}

// formatUpdated accepts epoch milliseconds or an RFC 3339 string
func formatUpdated(v any) string {
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return "-"
		}
		return time.UnixMilli(int64(t)).Local().Format(time.DateTime)
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.Local().Format(time.DateTime)
		}
		if t != "" {
			return t
		}
	}
	return "-"
}
