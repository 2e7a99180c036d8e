package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <request>",
	Short: "Start a workflow for a change request",
	Long: `Submit a change request to the running daemon. The request passes the
alignment gate first; a rejection prints the reason and creates no state.

Examples:
  pipelined start "add rate limiting to the ingest API"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show progress for a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List resumable workflows, newest first",
	RunE:  runList,
}

var runCmd = &cobra.Command{
	Use:   "run <workflow-id>",
	Short: "Drive a workflow through its remaining stages",
	Long: `Drive a workflow from its current checkpoint to completion: each
remaining sequential stage in order, then the parallel validators. The
command blocks until the pipeline finishes or a stage fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <workflow-id>",
	Short: "Build the resume context for an interrupted workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

// call performs one JSON request against the daemon and decodes the
// body into a generic map for printing.
func call(method, path string, body any) (int, map[string]any, error) {
	return callTimeout(method, path, body, 30*time.Second)
}

// callTimeout is call with an explicit client timeout; zero disables
// it for requests that block on pipeline execution.
func callTimeout(method, path string, body any, timeout time.Duration) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed (is the daemon running at %s?): %w", serverURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	var decoded map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("malformed response: %w", err)
		}
	}
	return resp.StatusCode, decoded, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")

	code, body, err := call(http.MethodPost, "/api/v1/workflows", map[string]string{"request": request})
	if err != nil {
		return err
	}

	switch code {
	case http.StatusCreated:
		fmt.Printf("workflow started: %v\n", body["workflow_id"])
		return nil
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("request rejected: %v", body["reason"])
	default:
		return fmt.Errorf("unexpected status %d: %v", code, body)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	code, body, err := call(http.MethodGet, "/api/v1/workflows/"+args[0]+"/status", nil)
	if err != nil {
		return err
	}
	if code == http.StatusNotFound {
		return fmt.Errorf("workflow %s not found", args[0])
	}
	if code != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %v", code, body)
	}
	return printJSON(body)
}

func runList(cmd *cobra.Command, args []string) error {
	code, body, err := call(http.MethodGet, "/api/v1/workflows", nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %v", code, body)
	}
	return printJSON(body)
}

func runRun(cmd *cobra.Command, args []string) error {
	code, body, err := callTimeout(http.MethodPost, "/api/v1/workflows/"+args[0]+"/run", nil, 0)
	if err != nil {
		return err
	}
	switch code {
	case http.StatusOK:
		return printJSON(body)
	case http.StatusNotFound:
		return fmt.Errorf("workflow %s not found", args[0])
	case http.StatusBadGateway:
		return fmt.Errorf("stage failed: %v", body["message"])
	default:
		return fmt.Errorf("unexpected status %d: %v", code, body)
	}
}

func runResume(cmd *cobra.Command, args []string) error {
	code, body, err := call(http.MethodPost, "/api/v1/workflows/"+args[0]+"/resume", nil)
	if err != nil {
		return err
	}
	switch code {
	case http.StatusOK:
		return printJSON(body)
	case http.StatusNotFound:
		return fmt.Errorf("workflow %s not found", args[0])
	case http.StatusConflict:
		return fmt.Errorf("cannot resume: %v", body["message"])
	default:
		return fmt.Errorf("unexpected status %d: %v", code, body)
	}
}
