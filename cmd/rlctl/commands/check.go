package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatewaylabs/ratelimit/pkg/apiserver"
)

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a rate limit check against the service",
		Long: `Send a check to the admin API and print the decision.

The check consumes from the bucket exactly as a real request would,
so repeated checks drain the budget.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			policyStr, _ := cmd.Flags().GetString("policy")
			org, _ := cmd.Flags().GetString("org")
			user, _ := cmd.Flags().GetString("user")
			props, _ := cmd.Flags().GetStringToString("property")

			req := apiserver.CheckRequest{
				Policy:         policyStr,
				OrganizationID: org,
				UserID:         user,
				Properties:     props,
			}
			if cmd.Flags().Changed("cost-cents") {
				cost, _ := cmd.Flags().GetFloat64("cost-cents")
				req.CostCents = &cost
			}

			var resp apiserver.CheckResponse
			if err := postJSON(server+"/api/v1/check", req, &resp); err != nil {
				return err
			}

			if resp.Allowed {
				fmt.Println("allowed")
			} else {
				fmt.Println("denied")
			}
			names := make([]string, 0, len(resp.Headers))
			for name := range resp.Headers {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %s: %s\n", name, resp.Headers[name])
			}
			if resp.Error != "" {
				fmt.Printf("  error: %s\n", resp.Error)
			}
			return nil
		},
	}

	cmd.Flags().String("policy", "", "Policy string, e.g. \"10;w=60\"")
	cmd.Flags().String("org", "", "Organization ID")
	cmd.Flags().String("user", "", "User ID for s=user policies")
	cmd.Flags().StringToString("property", nil, "Request properties for s=<property> policies, e.g. --property model=gpt-4")
	cmd.Flags().Float64("cost-cents", 0, "Explicit request cost in cents for u=cents policies")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func postJSON(url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(data))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
