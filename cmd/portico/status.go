// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/portico/portico/internal/config"
)

// statusTimeout bounds each probe.
const statusTimeout = 2 * time.Second

// ServiceStatus is the observed state of a running server.
type ServiceStatus struct {
	API             string `json:"api"`
	Running         bool   `json:"running"`
	Store           string `json:"store,omitempty"`
	UserCount       int    `json:"user_count"`
	AdminConfigured bool   `json:"admin_configured"`
	Metrics         string `json:"metrics,omitempty"`
	Ready           *bool  `json:"ready,omitempty"`
	Error           string `json:"error,omitempty"`
}

// apiStatus mirrors the /admin/status response body.
type apiStatus struct {
	Store           string `json:"store"`
	AdminConfigured bool   `json:"adminConfigured"`
	UserCount       int    `json:"userCount"`
	Service         string `json:"service"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	scfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running Portico server",
		Long: `Query the API and observability listeners of a running server and
report store connectivity, user count and readiness.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: configFile, Flags: cmd.Flags(), SkipValidation: true})
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runStatus(cmd, cfg, scfg, &http.Client{Timeout: statusTimeout})
		},
	}

	cmd.Flags().String("http-addr", "", "API listen address")
	cmd.Flags().String("metrics-addr", "", "metrics and health listen address")
	cmd.Flags().BoolVar(&scfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *config.Config, scfg *statusConfig, client *http.Client) error {
	status := queryStatus(client, cfg.HTTP.Addr, cfg.Metrics.Addr)

	if scfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Print(formatStatusTable(status))
	return nil
}

// queryStatus probes the API and, when configured, the readiness endpoint.
func queryStatus(client *http.Client, apiAddr, metricsAddr string) ServiceStatus {
	status := ServiceStatus{API: dialAddr(apiAddr)}

	resp, err := client.Get("http://" + status.API + "/admin/status")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	var body apiStatus
	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return status
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		status.Error = fmt.Sprintf("failed to decode status response: %v", err)
		return status
	}
	status.Running = body.Service == "active"
	status.Store = body.Store
	status.UserCount = body.UserCount
	status.AdminConfigured = body.AdminConfigured

	if metricsAddr == "" {
		return status
	}
	status.Metrics = dialAddr(metricsAddr)
	readyResp, err := client.Get("http://" + status.Metrics + "/healthz/readiness")
	if err != nil {
		// API answered; readiness is unknown
		return status
	}
	defer func() { _ = readyResp.Body.Close() }()
	ready := readyResp.StatusCode == http.StatusOK
	status.Ready = &ready

	return status
}

// dialAddr turns a listen address into one a local client can dial.
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(s ServiceStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "API\tSTATUS\tSTORE\tUSERS\tADMIN\tREADY")
	_, _ = fmt.Fprintln(w, "---\t------\t-----\t-----\t-----\t-----")

	if !s.Running {
		reason := "not running"
		if s.Error != "" {
			reason = s.Error
		}
		_, _ = fmt.Fprintf(w, "%s\tstopped\t-\t-\t-\t%s\n", s.API, reason)
	} else {
		admin := "disabled"
		if s.AdminConfigured {
			admin = "enabled"
		}
		ready := "-"
		if s.Ready != nil {
			ready = fmt.Sprintf("%t", *s.Ready)
		}
		_, _ = fmt.Fprintf(w, "%s\trunning\t%s\t%d\t%s\t%s\n",
			s.API, s.Store, s.UserCount, admin, ready)
	}

	_ = w.Flush()
	return string(buf)
}

// byteWriter adapts a byte slice to io.Writer.
type byteWriter []byte

func (b *byteWriter) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
