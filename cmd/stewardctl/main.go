// Command stewardctl is the operator CLI for a running steward daemon.
// It talks to the management API over HTTP.
//
// Usage:
//
//	stewardctl [-addr http://localhost:8080] <command> [args]
//
// Commands:
//
//	trigger <playbook> [key=value ...]  run a playbook now
//	jobs list                           list scheduled jobs
//	jobs get <id>                       show one job
//	jobs delete <id>                    unschedule a job
//	snapshot                            take an archive snapshot
//	version                             compare client and server versions
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/xraph/steward"
	"github.com/xraph/steward/jobstate"
)

func main() {
	addr := flag.String("addr", envOr("STEWARD_ADDR", "http://localhost:8080"),
		"base URL of the steward management API")
	flag.Usage = usage
	flag.Parse()

	c := &client{base: strings.TrimSuffix(*addr, "/"), http: &http.Client{Timeout: 30 * time.Second}}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "trigger":
		err = cmdTrigger(c, args[1:])
	case "jobs":
		err = cmdJobs(c, args[1:])
	case "snapshot":
		err = cmdSnapshot(c)
	case "version":
		err = cmdVersion(c)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "stewardctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: stewardctl [-addr URL] <command>

commands:
  trigger <playbook> [key=value ...]
  jobs list
  jobs get <id>
  jobs delete <id>
  snapshot
  version`)
}

func cmdTrigger(c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("trigger: playbook name required")
	}
	params := make(map[string]string)
	for _, arg := range args[1:] {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("trigger: bad parameter %q, want key=value", arg)
		}
		params[k] = v
	}

	var resp struct {
		RunID    string `json:"run_id"`
		Playbook string `json:"playbook"`
	}
	err := c.do(http.MethodPost, "/api/trigger",
		map[string]any{"name": args[0], "params": params}, &resp)
	if err != nil {
		return err
	}
	fmt.Printf("triggered %s: %s\n", resp.Playbook, resp.RunID)
	return nil
}

func cmdJobs(c *client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("jobs: subcommand required (list, get, delete)")
	}
	switch args[0] {
	case "list":
		var jobs []*jobstate.JobState
		if err := c.do(http.MethodGet, "/api/jobs", nil, &jobs); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tPLAYBOOK\tSCHEDULE\tRUNS\tNEXT RUN")
		for _, j := range jobs {
			next := "-"
			if j.NextRunAt != nil {
				next = j.NextRunAt.Local().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				j.JobID, j.Playbook, j.Schedule, j.ExecCount, next)
		}
		return w.Flush()
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("jobs get: job id required")
		}
		var job json.RawMessage
		if err := c.do(http.MethodGet, "/api/jobs/"+args[1], nil, &job); err != nil {
			return err
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, job, "", "  "); err != nil {
			return err
		}
		fmt.Println(pretty.String())
		return nil
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("jobs delete: job id required")
		}
		if err := c.do(http.MethodDelete, "/api/jobs/"+args[1], nil, nil); err != nil {
			return err
		}
		fmt.Printf("unscheduled %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
}

func cmdSnapshot(c *client) error {
	var resp map[string]string
	if err := c.do(http.MethodPost, "/api/snapshot", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("snapshot written: %s\n", resp["key"])
	return nil
}

func cmdVersion(c *client) error {
	fmt.Printf("client: %s\n", steward.Version)

	var resp map[string]string
	if err := c.do(http.MethodGet, "/version", nil, &resp); err != nil {
		return fmt.Errorf("fetching server version: %w", err)
	}
	fmt.Printf("server: %s\n", resp["version"])

	clientV, err := goversion.NewVersion(steward.Version)
	if err != nil {
		return nil
	}
	serverV, err := goversion.NewVersion(resp["version"])
	if err != nil {
		return nil
	}
	if clientV.LessThan(serverV) {
		fmt.Println("client is older than the server, consider upgrading")
	}
	if clientV.GreaterThan(serverV) {
		fmt.Println("client is newer than the server")
	}
	return nil
}

// client is a thin JSON HTTP client for the management API.
type client struct {
	base string
	http *http.Client
}

func (c *client) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, c.base+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
