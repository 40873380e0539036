// Package flightqactl implements the flightqactl command line client of the
// flightqa API.
package flightqactl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

const maxEventBytes = 1 << 20

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
	// NoColor disables pterm styling.
	NoColor bool
}

// usageError marks failures caused by how the command was invoked.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

// Run executes one command and returns the process exit code: 0 on success,
// 1 when the request fails and 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	if defaults.NoColor {
		pterm.DisableStyling()
		defer pterm.EnableStyling()
	}

	c := &client{stdout: stdout, stderr: stderr}
	root := newRootCommand(c, defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var usage usageError
	if errors.As(err, &usage) {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	_, _ = fmt.Fprintln(stderr, err)
	return 1
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCommand(c *client, defaults Options) *cobra.Command {
	var timeout time.Duration
	root := &cobra.Command{
		Use:           "flightqactl",
		Short:         "Command line client for the flightqa API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(c.baseURL) == "" {
				return usageError{errors.New("base url is required")}
			}
			c.baseURL = strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
			c.apiKey = strings.TrimSpace(c.apiKey)
			if c.http == nil {
				c.http = defaults.HTTPClient
			}
			if c.http == nil {
				c.http = &http.Client{Timeout: timeout}
			}
			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unknown command %q", args[0])}
			}
			return usageError{errors.New("a command is required")}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "flightqa API base URL")
	flags.StringVar(&c.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		newAskCommand(c),
		newGetCommand(c, "health", "Show liveness", "/v1/health"),
		newGetCommand(c, "ready", "Show readiness of the database and policy store", "/v1/ready"),
		newAirlinesCommand(c),
		newPoliciesCommand(c),
	)
	return root
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func newAskCommand(c *client) *cobra.Command {
	var noStream, hideSQL bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a flight question and stream the answer",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if noStream {
				return c.askOnce(cmd.Context(), question, !hideSQL)
			}
			return c.askStream(cmd.Context(), question, !hideSQL)
		},
	}
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "use POST /v1/query and print the whole answer at once")
	cmd.Flags().BoolVar(&hideSQL, "hide-sql", false, "do not print the generated SQL")
	return cmd
}

func newGetCommand(c *client, name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := c.do(cmd.Context(), http.MethodGet, path, nil, "")
			if err != nil {
				return err
			}
			c.printJSON(body)
			return nil
		},
	}
}

func newAirlinesCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "airlines",
		Short: "List known airlines and whether a policy document exists",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := c.do(cmd.Context(), http.MethodGet, "/v1/airlines", nil, "")
			if err != nil {
				return err
			}
			rows := [][]string{{"Airline", "Policy"}}
			for _, airline := range gjson.GetBytes(body, "airlines").Array() {
				policy := "no"
				if airline.Get("has_policy").Bool() {
					policy = "yes"
				}
				rows = append(rows, []string{airline.Get("name").String(), policy})
			}
			return c.printTable(rows)
		},
	}
}

func newPoliciesCommand(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Manage airline policy documents",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return usageError{errors.New("policies requires a subcommand: list or upload")}
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored policy documents",
			Args:  usageArgs(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, _ []string) error {
				body, err := c.do(cmd.Context(), http.MethodGet, "/v1/policies", nil, "")
				if err != nil {
					return err
				}
				rows := [][]string{{"Key", "Size", "Last modified"}}
				for _, object := range gjson.GetBytes(body, "policies").Array() {
					rows = append(rows, []string{
						object.Get("key").String(),
						object.Get("size").String(),
						object.Get("last_modified").String(),
					})
				}
				return c.printTable(rows)
			},
		},
		&cobra.Command{
			Use:   "upload <file>...",
			Short: "Upload policy documents; the file name becomes the key",
			Args:  usageArgs(cobra.MinimumNArgs(1)),
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, path := range args {
					if err := c.uploadPolicy(cmd.Context(), path); err != nil {
						return err
					}
				}
				return nil
			},
		},
	)
	return cmd
}

func (c *client) uploadPolicy(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	endpoint := "/v1/policies/" + url.PathEscape(filepath.Base(path))
	body, err := c.do(ctx, http.MethodPut, endpoint, bytes.NewReader(raw), "text/plain; charset=utf-8")
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	pterm.Fprintln(c.stdout, pterm.Success.Sprintf("uploaded %s (%d bytes)",
		gjson.GetBytes(body, "key").String(), gjson.GetBytes(body, "size").Int()))
	return nil
}

func (c *client) askStream(ctx context.Context, question string, showSQL bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/stream?question="+url.QueryEscape(question), nil, "")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}

	var sql strings.Builder
	sqlShown := false
	answered := false
	showPendingSQL := func() {
		if showSQL && !sqlShown && sql.Len() > 0 {
			c.printSQL(sql.String())
		}
		sqlShown = true
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok || !gjson.Valid(payload) {
			continue
		}
		event := gjson.Parse(payload)
		content := event.Get("content").String()
		switch event.Get("type").String() {
		case "sql":
			sql.WriteString(content)
		case "answer":
			showPendingSQL()
			answered = true
			_, _ = fmt.Fprint(c.stdout, content)
		case "error":
			showPendingSQL()
			if answered {
				_, _ = fmt.Fprintln(c.stdout)
			}
			return errors.New(pterm.Error.Sprint(content))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	showPendingSQL()
	if answered {
		_, _ = fmt.Fprintln(c.stdout)
	}
	return nil
}

func (c *client) askOnce(ctx context.Context, question string, showSQL bool) error {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return err
	}
	body, err := c.do(ctx, http.MethodPost, "/v1/query", bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	if sql := gjson.GetBytes(body, "sql_query").String(); showSQL && sql != "" {
		c.printSQL(sql)
	}
	_, _ = fmt.Fprintln(c.stdout, gjson.GetBytes(body, "final_response").String())
	return nil
}

func (c *client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}
	return io.ReadAll(resp.Body)
}

// statusError renders an API error envelope, falling back to the raw body.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxEventBytes))
	code := gjson.GetBytes(raw, "error_code").String()
	message := gjson.GetBytes(raw, "message").String()
	if code == "" {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return fmt.Errorf("http %d %s: %s", resp.StatusCode, code, message)
}

func (c *client) printSQL(sql string) {
	_, _ = fmt.Fprintln(c.stdout, pterm.DefaultBox.WithTitle("SQL").Sprint(sql))
}

func (c *client) printTable(rows [][]string) error {
	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.stdout, table)
	return nil
}

func (c *client) printJSON(raw []byte) {
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(raw), "", "  "); err != nil {
		_, _ = fmt.Fprintln(c.stdout, strings.TrimSpace(string(raw)))
		return
	}
	_, _ = fmt.Fprintln(c.stdout, out.String())
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
