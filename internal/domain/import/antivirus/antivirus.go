// Package antivirus scans uploads before they are parsed.
package antivirus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
)

// ErrUnavailable is returned when the scanner cannot be reached or times out.
var ErrUnavailable = errors.New("antivirus unavailable")

// ErrNoScanner is the unavailability reported when no scanner is configured.
var ErrNoScanner = fmt.Errorf("%w: no scanner configured", ErrUnavailable)

// Result is a scan verdict.
type Result struct {
	Infected   bool
	Signatures []string
}

// Scanner inspects a file.
type Scanner interface {
	Scan(ctx context.Context, data []byte, filename string) (Result, error)
}

// Policy decides what happens when the scanner is unavailable. Only
// PolicyDisabled accepts uploads without a configured scanner.
type Policy string

const (
	PolicyFailClosed Policy = "fail_closed"
	PolicyFailOpen   Policy = "fail_open"
	PolicyDisabled   Policy = "disabled"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFailClosed, PolicyFailOpen, PolicyDisabled:
		return p, nil
	case "":
		return PolicyFailClosed, nil
	default:
		return "", fmt.Errorf("unknown antivirus policy %q", s)
	}
}

// Guard applies the unavailability policy around a Scanner. A missing
// scanner counts as unavailable unless the policy is PolicyDisabled.
type Guard struct {
	scanner Scanner
	policy  Policy
	logger  *slog.Logger
}

// NewGuard creates a guard.
func NewGuard(scanner Scanner, policy Policy, logger *slog.Logger) *Guard {
	return &Guard{scanner: scanner, policy: policy, logger: logger}
}

// Check returns a warning when the upload proceeds unscanned and an error
// when it must be rejected.
func (g *Guard) Check(ctx context.Context, data []byte, filename string) (string, error) {
	if g.policy == PolicyDisabled {
		g.logger.Warn("virus scan disabled", slog.String("filename", filename))
		return "virus scan disabled", nil
	}

	var (
		res Result
		err = ErrNoScanner
	)
	if g.scanner != nil {
		res, err = g.scanner.Scan(ctx, data, filename)
	}
	if err != nil {
		if g.policy == PolicyFailOpen {
			g.logger.Warn("antivirus unavailable, accepting upload unscanned",
				slog.String("filename", filename),
				slog.String("policy", string(g.policy)),
				slog.Any("error", err))
			return "virus scan skipped: scanner unavailable", nil
		}
		g.logger.Error("antivirus unavailable, rejecting upload",
			slog.String("filename", filename),
			slog.String("policy", string(g.policy)),
			slog.Any("error", err))
		return "", common.Wrap(common.KindUnavailable, "antivirus scanner unavailable", err)
	}

	if res.Infected {
		g.logger.Warn("infected upload rejected",
			slog.Bool("security", true),
			slog.String("filename", filename),
			slog.Any("signatures", res.Signatures))
		return "", common.E(common.KindRejected, "file rejected: malware detected")
	}
	return "", nil
}
