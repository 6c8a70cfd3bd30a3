// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuardian/services/enforcement/datatypes"
)

var (
	rootCmd = &cobra.Command{
		Use:   "guardian",
		Short: "A CLI to manage AleutianGuardian policy enforcement",
		Long: `Guardian is the operator tool for the AleutianGuardian enforcement
service. It triggers enforcement runs, inspects job outcomes, retries
failed pushes, and prints guided setup steps for platforms without APIs.`,
	}

	serverURL   string
	platformIDs []string

	enforceCmd = &cobra.Command{
		Use:   "enforce [child_id]",
		Short: "Push the child's active policy rules to their platforms",
		Long:  `Triggers an enforcement run. Omit --platform to target every connected platform; repeat it to target a subset.`,
		Args:  cobra.ExactArgs(1),
		Run:   runEnforce,
	}

	jobsCmd = &cobra.Command{
		Use:   "jobs",
		Short: "Inspect enforcement jobs",
	}
	listJobsCmd = &cobra.Command{
		Use:   "list [child_id]",
		Short: "List a child's enforcement jobs, newest first",
		Args:  cobra.ExactArgs(1),
		Run:   runListJobs,
	}
	showJobCmd = &cobra.Command{
		Use:   "show [job_id]",
		Short: "Show a job's per-rule results and summary counts",
		Args:  cobra.ExactArgs(1),
		Run:   runShowJob,
	}
	retryJobCmd = &cobra.Command{
		Use:   "retry [job_id]",
		Short: "Re-push only the rules that failed in a previous job",
		Args:  cobra.ExactArgs(1),
		Run:   runRetryJob,
	}

	stepsCategory string
	stepsCmd      = &cobra.Command{
		Use:   "steps [platform_id]",
		Short: "Print the manual setup steps for a guided-tier platform",
		Args:  cobra.ExactArgs(1),
		Run:   runSteps,
	}

	syncChildID string
	syncMode    string
	syncCmd     = &cobra.Command{
		Use:   "sync [source_id]",
		Short: "Synchronize a policy source platform",
		Long:  `Pushes the child's rule set to one platform. Incremental mode sends only rules changed since the platform's last successful sync.`,
		Args:  cobra.ExactArgs(1),
		Run:   runSync,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		getEnvString("GUARDIAN_SERVER_URL", "http://localhost:12310"),
		"Enforcement service base URL")

	enforceCmd.Flags().StringArrayVar(&platformIDs, "platform", nil,
		"Target platform ID (repeatable; default is all connected platforms)")

	stepsCmd.Flags().StringVar(&stepsCategory, "category", "",
		"Rule category to print steps for (required)")
	_ = stepsCmd.MarkFlagRequired("category")

	syncCmd.Flags().StringVar(&syncChildID, "child", "", "Child ID (required)")
	_ = syncCmd.MarkFlagRequired("child")
	syncCmd.Flags().StringVar(&syncMode, "mode", "full",
		"Sync mode: full or incremental")

	rootCmd.AddCommand(enforceCmd)
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(showJobCmd)
	jobsCmd.AddCommand(retryJobCmd)
	rootCmd.AddCommand(stepsCmd)
	rootCmd.AddCommand(syncCmd)
}

func runEnforce(cmd *cobra.Command, args []string) {
	body := datatypes.EnforceRequest{
		ChildID:     args[0],
		PlatformIDs: platformIDs,
	}

	var resp datatypes.EnforceResponse
	postJSON("/v1/enforce", body, &resp)

	fmt.Printf("Enforcement job started: %s\n", resp.JobID)
	fmt.Printf("Follow it with: guardian jobs show %s\n", resp.JobID)
}

func runListJobs(cmd *cobra.Command, args []string) {
	var resp struct {
		Jobs []datatypes.EnforcementJob `json:"jobs"`
	}
	getJSON("/v1/jobs?child_id="+args[0], &resp)

	if len(resp.Jobs) == 0 {
		fmt.Println("No enforcement jobs found.")
		return
	}

	fmt.Println("Enforcement Jobs:")
	fmt.Println("------------------------------------------------------------------")
	for _, j := range resp.Jobs {
		fmt.Printf("  %s  %-9s  %-7s  %s\n",
			j.ID, j.Status, j.TriggerType, j.CreatedAt.Format(time.RFC3339))
	}
}

func runShowJob(cmd *cobra.Command, args []string) {
	var resp datatypes.JobResultsResponse
	getJSON("/v1/jobs/"+args[0]+"/results", &resp)

	fmt.Printf("Job %s: %s\n", resp.JobID, resp.Status)
	fmt.Printf("  applied=%d skipped=%d failed=%d unsupported=%d\n",
		resp.Summary.RulesApplied, resp.Summary.RulesSkipped,
		resp.Summary.RulesFailed, resp.Summary.RulesUnsupported)
	for _, r := range resp.Results {
		line := fmt.Sprintf("  %-12s %-20s %s", r.PlatformID, r.Category, r.Status)
		if r.ErrorMessage != "" {
			line += "  (" + r.ErrorMessage + ")"
		}
		fmt.Println(line)
	}
}

func runRetryJob(cmd *cobra.Command, args []string) {
	var resp datatypes.RetryResponse
	postJSON("/v1/jobs/"+args[0]+"/retry", nil, &resp)

	fmt.Printf("Retry job started: %s\n", resp.NewJobID)
}

func runSteps(cmd *cobra.Command, args []string) {
	var resp datatypes.GuidedStepsResponse
	getJSON("/v1/platforms/"+args[0]+"/steps?category="+stepsCategory, &resp)

	fmt.Printf("Manual steps for %s (%s):\n", resp.PlatformID, resp.Category)
	for _, step := range resp.Steps {
		fmt.Printf("  %d. %s\n     %s\n", step.StepNumber, step.Title, step.Description)
		if step.DeepLink != "" {
			fmt.Printf("     Open: %s\n", step.DeepLink)
		}
	}
}

func runSync(cmd *cobra.Command, args []string) {
	body := datatypes.SyncRequest{
		ChildID: syncChildID,
		Mode:    datatypes.SyncMode(syncMode),
	}

	var resp datatypes.EnforceResponse
	postJSON("/v1/sources/"+args[0]+"/sync", body, &resp)

	fmt.Printf("Sync job started: %s\n", resp.JobID)
}

// postJSON sends a POST to the enforcement service and decodes the response
// into out. Any non-2xx status is fatal with the server's error message.
func postJSON(path string, body any, out any) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("Failed to encode request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	resp, err := http.Post(serverURL+path, "application/json", reader)
	if err != nil {
		log.Fatalf("Failed to connect to enforcement service: %v", err)
	}
	defer resp.Body.Close()

	decodeResponse(resp, out)
}

// getJSON sends a GET to the enforcement service and decodes the response.
func getJSON(path string, out any) {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		log.Fatalf("Failed to connect to enforcement service: %v", err)
	}
	defer resp.Body.Close()

	decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			log.Fatalf("Enforcement service returned %s: %s", resp.Status, apiErr.Error)
		}
		log.Fatalf("Enforcement service returned an error: %s", resp.Status)
	}
	if out == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatalf("Failed to parse response: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
