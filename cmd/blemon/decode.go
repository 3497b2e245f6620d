package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/blemon/internal/device"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <characteristic-uuid> <hex-value>",
	Short: "Decode a raw characteristic value",
	Long: `Decode a characteristic value the same way the monitor does for
notifications. Bytes may be separated by spaces, colons or dashes.`,
	Example: `  blemon decode 2a6e "f5 07"
  blemon decode 0x2A37 06:48`,
	Args: cobra.ExactArgs(2),
	RunE: runDecode,
}

var decodeFormat string

func init() {
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "text", "Output format (text, json)")
}

// parseHexValue accepts "f507", "f5 07", "f5:07", "F5-07" and "0xf507".
func parseHexValue(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(strings.TrimSpace(s))
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return data, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	if decodeFormat != "text" && decodeFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", decodeFormat)
	}
	uuids, err := device.ValidateUUID(args[0])
	if err != nil {
		return err
	}
	if !device.IsDecodableCharacteristic(uuids[0]) {
		return fmt.Errorf("no decoder for characteristic %s", uuids[0])
	}
	value, err := parseHexValue(args[1])
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	r, err := device.DecodeCharacteristic(uuids[0], value)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if decodeFormat == "json" {
		return json.NewEncoder(out).Encode(struct {
			Domain string  `json:"domain"`
			Value  float64 `json:"value"`
			Text   string  `json:"text"`
			Unit   string  `json:"unit,omitempty"`
		}{string(r.Domain), r.Value, r.Text, r.Unit})
	}
	_, err = fmt.Fprintf(out, "%s: %s\n", r.Domain, r.Text)
	return err
}
