package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"dataflag/internal/domain/dataflag"
)

// Helpers reading optional cobra flags: nil means the flag was not given,
// so downstream code can distinguish "unset" from a zero value.

func stringFlagPtr(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	value, _ := cmd.Flags().GetString(name)
	return &value
}

func int64FlagPtr(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	value, _ := cmd.Flags().GetInt64(name)
	return &value
}

func timeFlagPtr(cmd *cobra.Command, name string) (*float64, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	raw, _ := cmd.Flags().GetString(name)
	unix, err := parseTimeArg(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &unix, nil
}

func intSliceFlag(cmd *cobra.Command, name string) []int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	values, _ := cmd.Flags().GetIntSlice(name)
	return values
}

// metadataFlag parses a --metadata JSON object into a metadata blob.
func metadataFlag(cmd *cobra.Command, name string) (dataflag.Metadata, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	raw, _ := cmd.Flags().GetString(name)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("%w: --%s must be a JSON object: %v", dataflag.ErrInvalidMetadata, name, err)
	}
	return dataflag.Metadata(decoded), nil
}
