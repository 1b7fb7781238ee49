package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/benmeehan/tms-heartbeat/internal/constants"
)

// Role is the contract shared by the device and dashboard loops.
type Role interface {
	Name() string
	Run(ctx context.Context) error
}

// ParseServerType accepts exactly "pub" or "sub".
func ParseServerType(s string) (constants.ServerType, error) {
	switch constants.ServerType(s) {
	case constants.ServerTypePub, constants.ServerTypeSub:
		return constants.ServerType(s), nil
	}
	return "", fmt.Errorf("invalid servertype %q: must be one of [%s]", s,
		strings.Join([]string{string(constants.ServerTypePub), string(constants.ServerTypeSub)}, ", "))
}
