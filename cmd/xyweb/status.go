// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/xybot/xyweb/internal/config"
)

// ServerStatus is the result of probing a running server.
type ServerStatus struct {
	URL    string `json:"url"`
	Ready  bool   `json:"ready"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	url        string
	jsonOutput bool
}

func newStatusCmd(opts *globalOptions, deps Deps) *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the readiness of a running xyweb server",
		Long: `Query the health endpoint of a running server. The readiness probe
of the observability listener is used when metrics_addr is configured,
otherwise the web API /healthz endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts, cfg, deps)
		},
	}

	cmd.Flags().StringVar(&cfg.url, "url", "", "health endpoint URL (derived from config when empty)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *globalOptions, sc *statusConfig, deps Deps) error {
	url := sc.url
	if url == "" {
		cfg, err := opts.load(cmd)
		if err != nil {
			return err
		}
		url = healthURL(cfg)
	}

	status := probe(cmd, deps.HTTPClient, url)
	if sc.jsonOutput {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		cmd.Println(string(out))
	} else {
		switch {
		case status.Ready:
			cmd.Printf("ready (%s)\n", url)
		case status.Error != "":
			cmd.Printf("unreachable (%s): %s\n", url, status.Error)
		default:
			cmd.Printf("not ready (%s): HTTP %d\n", url, status.Status)
		}
	}

	if !status.Ready {
		return oops.Code("SERVER_NOT_READY").With("url", url).Errorf("server is not ready")
	}
	return nil
}

func probe(cmd *cobra.Command, client *http.Client, url string) ServerStatus {
	status := ServerStatus{URL: url}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	status.Status = resp.StatusCode
	status.Ready = resp.StatusCode == http.StatusOK
	return status
}

// healthURL picks the readiness endpoint for the configured listeners.
func healthURL(cfg *config.Config) string {
	if cfg.MetricsAddr != "" {
		return "http://" + dialAddr(cfg.MetricsAddr) + "/healthz/readiness"
	}
	return "http://" + dialAddr(cfg.HTTP.Addr) + "/healthz"
}

// dialAddr turns a listen address into one a local client can dial.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch strings.Trim(host, "[]") {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
