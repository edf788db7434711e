package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatewaylabs/ratelimit/pkg/apiserver"
)

// NewBucketCmd creates the bucket command group
func NewBucketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Inspect and reset rate limit buckets",
	}
	cmd.AddCommand(newBucketGetCmd())
	cmd.AddCommand(newBucketResetCmd())
	return cmd
}

func newBucketGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show a bucket's stored state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")

			resp, err := bucketRequest(http.MethodGet, server, args[0])
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("no bucket for key %q", args[0])
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", resp.Status)
			}

			var state apiserver.BucketResponse
			if err := json.Unmarshal(data, &state); err != nil {
				return err
			}
			fmt.Printf("key:            %s\n", state.Key)
			fmt.Printf("tokens:         %v\n", state.Tokens)
			fmt.Printf("capacity:       %v %s\n", state.Capacity, state.Unit)
			fmt.Printf("window:         %ds\n", state.WindowSeconds)
			fmt.Printf("last refill:    %s\n", time.UnixMilli(state.LastRefillMs).UTC().Format(time.RFC3339))
			fmt.Printf("policy hash:    %x\n", state.PolicyHash)
			return nil
		},
	}
}

func newBucketResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <key>",
		Short: "Delete a bucket so it refills to capacity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")

			resp, err := bucketRequest(http.MethodDelete, server, args[0])
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			fmt.Printf("bucket %s reset\n", args[0])
			return nil
		},
	}
}

func bucketRequest(method, server, key string) (*http.Response, error) {
	target := server + "/api/v1/buckets?key=" + url.QueryEscape(key)
	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", target, err)
	}
	return resp, nil
}
