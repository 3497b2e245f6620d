package device

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// NormalizeAddress validates a peripheral address and returns it upper-cased.
// Linux reports 48-bit MAC addresses; macOS hides them behind per-host UUIDs,
// so both forms are accepted.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("address cannot be empty")
	}
	if hw, err := net.ParseMAC(addr); err == nil && len(hw) == 6 {
		return strings.ToUpper(hw.String()), nil
	}
	if id, err := uuid.Parse(addr); err == nil {
		return strings.ToUpper(id.String()), nil
	}
	return "", fmt.Errorf("invalid address %q: expected XX:XX:XX:XX:XX:XX or a platform UUID", addr)
}
