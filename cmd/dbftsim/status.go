package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tv42/httpunix"
)

// unixPrefix marks an HTTP address as a unix socket path.
const unixPrefix = "unix:"

// unixLocation is the host name the status client registers for a socket.
const unixLocation = "dbftsim"

// listenHTTP listens on addr, which is either host:port or unix:PATH.
func listenHTTP(addr string) (net.Listener, error) {
	network, address := "tcp", addr
	if path, ok := strings.CutPrefix(addr, unixPrefix); ok {
		network, address = "unix", path
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for HTTP on %s: %w", addr, err)
	}
	return ln, nil
}

// listenerURL formats ln's address the way the status command accepts it.
func listenerURL(ln net.Listener) string {
	a := ln.Addr()
	if a.Network() == "unix" {
		return unixPrefix + a.String()
	}
	return "http://" + a.String()
}

func newStatusCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status [ROUTE]",
		Short: "Query a running simulation's debug server",
		Long: `Query the debug HTTP server started by "dbftsim run --http".

ROUTE defaults to /status. Other routes are /snapshot, /blocks/last and /blocks/HEIGHT.
The address is either a URL such as http://127.0.0.1:8080 or unix:PATH for a socket.`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			route := "/status"
			if len(args) == 1 {
				route = "/" + strings.TrimPrefix(args[0], "/")
			}
			return queryStatus(cmd.Context(), addr, route, timeout, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "http://127.0.0.1:8080", "debug server address (URL or unix:PATH)")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	return cmd
}

// queryStatus fetches route from the debug server at addr and copies the body to out.
func queryStatus(
	ctx context.Context, addr, route string, timeout time.Duration, out io.Writer,
) error {
	client := &http.Client{Timeout: timeout}
	base := strings.TrimSuffix(addr, "/")

	if path, ok := strings.CutPrefix(addr, unixPrefix); ok {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("debug socket unavailable: %w", err)
		}

		u := &httpunix.Transport{
			DialTimeout:           timeout,
			RequestTimeout:        timeout,
			ResponseHeaderTimeout: timeout,
		}
		u.RegisterLocation(unixLocation, path)
		client.Transport = u
		base = httpunix.Scheme + "://" + unixLocation
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+route, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query debug server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf(
			"debug server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)),
		)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return nil
}
