package inspector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// InspectOptions defines options for inspecting a BLE device profile
type InspectOptions struct {
	ConnectTimeout time.Duration
}

// InspectCallback processes a connected client and its discovered profile
// and produces output of type R
type InspectCallback[R any] func(device.Client, *device.Profile) (R, error)

// InspectDevice connects to address, discovers the GATT profile and runs
// callback while the connection is open. The connection is always released
// before InspectDevice returns.
func InspectDevice[R any](ctx context.Context, central device.Central, address string, opts *InspectOptions, logger *logrus.Logger, progressCallback ProgressCallback, callback InspectCallback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = &InspectOptions{ConnectTimeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	progressCallback("Connecting")

	dialCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	client, err := central.Dial(dialCtx, address)
	if err != nil {
		progressCallback("Failed")
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%w: connect to %s timed out after %s", device.ErrTimeout, address, opts.ConnectTimeout)
		}
		return zero, err
	}

	defer func() {
		if err := client.CancelConnection(); err != nil {
			logger.WithError(err).Error("failed to disconnect device")
		}
	}()

	progressCallback("Discovering services")
	profile, err := client.DiscoverProfile(ctx)
	if err != nil {
		progressCallback("Failed")
		return zero, fmt.Errorf("service discovery failed: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Debug("Profile discovered")

	progressCallback("Processing results")
	return callback(client, profile)
}
