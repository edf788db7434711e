package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gatewaylabs/ratelimit/pkg/policy"
)

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <policy>",
		Short: "Validate a rate limit policy string",
		Long: `Parse a policy string offline and print its interpretation.

Exits non-zero when the policy is invalid, printing which field failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := policy.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid policy: %w", err)
			}
			if p == nil {
				fmt.Println("empty policy: no rate limiting applies")
				return nil
			}

			fmt.Printf("canonical: %s\n", policy.BuildPolicyString(p))
			fmt.Printf("quota:     %v %s per %d seconds\n", p.Quota, p.Unit, p.WindowSeconds)
			switch p.Segment.Type {
			case policy.SegmentUser:
				fmt.Println("segment:   per user")
			case policy.SegmentProperty:
				fmt.Printf("segment:   per property %q\n", p.Segment.Name)
			default:
				fmt.Println("segment:   global (per organization)")
			}
			return nil
		},
	}
}
