package pkg

import (
	"encoding/json"
	"fmt"
	"os"
)

// envInheritedListeners carries the listener handover map across a re-exec: a
// JSON object mapping canonical bind-strings (Bind.String()) to the integer
// file descriptors the new process inherits them on (§6).
const envInheritedListeners = "ITSI_INHERITED_LISTENERS"

// encodeListenerHandover serializes a bind-string → fd map for the exec'd
// process.
func encodeListenerHandover(m map[string]int) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode listener handover map: %w", err)
	}
	return string(data), nil
}

// decodeListenerHandover parses the handover map produced by
// encodeListenerHandover.
func decodeListenerHandover(raw string) (map[string]int, error) {
	m := make(map[string]int)
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("invalid listener handover map: %v", err))
	}
	return m, nil
}

// inheritedListenersFromEnv reads the handover map from the environment; an
// absent variable means a fresh start (empty map), a malformed one is a
// configuration error.
func inheritedListenersFromEnv() (map[string]int, error) {
	raw := os.Getenv(envInheritedListeners)
	if raw == "" {
		return map[string]int{}, nil
	}
	return decodeListenerHandover(raw)
}
