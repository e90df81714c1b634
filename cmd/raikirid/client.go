package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func doRequest(addr, method, command, componentID string, body io.Reader, extraHeaders map[string]string) error {
	req, err := http.NewRequest(method, addr, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Platform-Command", command)
	if componentID != "" {
		req.Header.Set("Component-Id", componentID)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", command, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: status %d: %s", command, resp.StatusCode, respBody)
	}
	if len(respBody) > 0 {
		fmt.Println(string(respBody))
	}
	return nil
}

func putComponentCmd() *cobra.Command {
	var addr, file string
	cmd := &cobra.Command{
		Use:   "put-component <name>",
		Short: "Upload a component's source bytes (Put-Component)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()
			return doRequest(addr, http.MethodPost, "Put-Component", args[0], f, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "daemon address")
	cmd.Flags().StringVar(&file, "file", "", "path to the component's source bytes")
	cmd.MarkFlagRequired("file")
	return cmd
}

func invokeCmd() *cobra.Command {
	var addr, method, host string
	cmd := &cobra.Command{
		Use:   "invoke <tenant.name>",
		Short: "Call a deployed component (Invoke-Component)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(addr, method, "Invoke-Component", args[0], os.Stdin, map[string]string{"Host": host})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "daemon address")
	cmd.Flags().StringVar(&method, "method", http.MethodGet, "HTTP method to forward to the guest")
	cmd.Flags().StringVar(&host, "host", "localhost:8080", "Host header forwarded to the guest")
	return cmd
}

func updateSecretsCmd() *cobra.Command {
	var addr, file string
	cmd := &cobra.Command{
		Use:   "update-secrets <name>",
		Short: "Replace a component's secret map (Update-Component-Secrets)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = os.Stdin
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}
			return doRequest(addr, http.MethodPost, "Update-Component-Secrets", args[0], in, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "daemon address")
	cmd.Flags().StringVar(&file, "file", "", "path to a YAML secret map (default: stdin)")
	return cmd
}

func rotateKeyCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "rotate-key",
		Short: "Rotate the daemon's configured tenant's encryption key (Update-Crypto-Key)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(addr, http.MethodPost, "Update-Crypto-Key", "", nil, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "daemon address")
	return cmd
}
