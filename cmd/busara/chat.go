package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
)

// Exit codes for the chat command.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitDenied      = 2
	ExitUnavailable = 3
)

var (
	chatMessage    string
	chatServerURL  string
	chatAPIKey     string
	chatTimeout    int
	chatRunFlow    bool
	chatWorkflowID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send a one-shot message to a running server",
	Long: `Send a message to a running Busara server and print the reply.
The message is routed to the best-matching agent by the server's selector,
or through a workflow when --workflow is given.

Examples:
  busara chat -m "translate this to French: good morning"
  busara chat -m "summarize the incident" --workflow triage-flow

Exit codes:
  0  success
  1  dispatch failure
  2  unauthorized or rate limited
  3  server unavailable`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "message to send (required)")
	chatCmd.Flags().StringVar(&chatServerURL, "server-url", "http://localhost:8080", "server HTTP API URL")
	chatCmd.Flags().StringVar(&chatAPIKey, "api-key", "", "API key (or BUSARA_API_KEY env)")
	chatCmd.Flags().IntVar(&chatTimeout, "timeout", 300, "timeout in seconds")
	chatCmd.Flags().StringVar(&chatWorkflowID, "workflow", "", "run this workflow instead of single-agent chat")

	_ = chatCmd.MarkFlagRequired("message")
}

func runChat(_ *cobra.Command, _ []string) error {
	if chatMessage == "" {
		return fmt.Errorf("message is required: use -m flag")
	}

	apiKey := goutils.Env("BUSARA_API_KEY", chatAPIKey)
	serverURL := goutils.Env("BUSARA_SERVER_URL", chatServerURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(chatTimeout)*time.Second)
	defer cancel()

	path := "/v1/chat"
	if chatWorkflowID != "" {
		path = "/v1/workflows/" + chatWorkflowID + "/run"
	}

	reqBody, _ := json.Marshal(map[string]string{"message": chatMessage})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+path, bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach server at %s: %v\n", serverURL, err)
		os.Exit(ExitUnavailable)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		if chatWorkflowID != "" {
			printWorkflowResult(respBody)
		} else {
			printChatResult(respBody)
		}

	case http.StatusUnauthorized:
		fmt.Fprintln(os.Stderr, "Error: unauthorized (check API key)")
		os.Exit(ExitDenied)

	case http.StatusTooManyRequests:
		fmt.Fprintln(os.Stderr, "Error: rate limited, try again later")
		os.Exit(ExitDenied)

	case http.StatusNotFound:
		fmt.Fprintf(os.Stderr, "Error: %s\n", string(respBody))
		os.Exit(ExitFailure)

	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		fmt.Fprintf(os.Stderr, "Error: server unavailable (%d)\n", resp.StatusCode)
		os.Exit(ExitUnavailable)

	default:
		fmt.Fprintf(os.Stderr, "Error: server returned %d: %s\n", resp.StatusCode, string(respBody))
		os.Exit(ExitFailure)
	}

	return nil
}

func printChatResult(body []byte) {
	var result struct {
		Agent         string `json:"agent"`
		Response      string `json:"response"`
		Success       bool   `json:"success"`
		Error         string `json:"error"`
		CorrelationID string `json:"correlation_id"`
	}
	_ = json.Unmarshal(body, &result)

	if !result.Success {
		fmt.Fprintf(os.Stderr, "Dispatch failed: %s\n", result.Error)
		os.Exit(ExitFailure)
	}
	fmt.Println(result.Response)
	fmt.Fprintf(os.Stderr, "\n[agent=%s correlation_id=%s]\n", result.Agent, result.CorrelationID)
	os.Exit(ExitSuccess)
}

func printWorkflowResult(body []byte) {
	var result struct {
		WorkflowID    string `json:"workflow_id"`
		CorrelationID string `json:"correlation_id"`
		Result        struct {
			Success bool     `json:"success"`
			Result  any      `json:"result"`
			Path    []string `json:"path"`
			Error   string   `json:"error"`
		} `json:"result"`
	}
	_ = json.Unmarshal(body, &result)

	if !result.Result.Success {
		fmt.Fprintf(os.Stderr, "Workflow failed: %s\n", result.Result.Error)
		os.Exit(ExitFailure)
	}

	out, _ := json.MarshalIndent(result.Result.Result, "", "  ")
	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "\n[workflow=%s path=%v correlation_id=%s]\n",
		result.WorkflowID, result.Result.Path, result.CorrelationID)
	os.Exit(ExitSuccess)
}
