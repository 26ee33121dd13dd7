package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/restapi"
)

const (
	deviceInfoPath = "/shared/identified-devices/config/device-info"
	devicePath     = "/tm/cm/device/"
	cmCommandPath  = "/tm/cm"
)

// Sync directions
const (
	SyncToGroup   = "to-group"
	SyncFromGroup = "from-group"
)

type deviceInfo struct {
	Hostname string `json:"hostname"`
}

type configSyncIPBody struct {
	ConfigsyncIP string `json:"configsyncIp"`
}

type runCommand struct {
	Command     string `json:"command"`
	UtilCmdArgs string `json:"utilCmdArgs"`
}

// Hostname returns the hostname the appliance reports for itself.
func (c *Cluster) Hostname(ctx context.Context) (string, error) {
	raw, err := c.exec.List(ctx, deviceInfoPath, restapi.WithoutRetry())
	if err != nil {
		return "", err
	}
	var info deviceInfo
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &info); err != nil {
			return "", restapi.NewParseError("failed to decode device info", err)
		}
	}
	if info.Hostname == "" {
		return "", errors.New("device info did not report a hostname")
	}
	return info.Hostname, nil
}

// ConfigSyncIP sets the config sync address of the local device.
func (c *Cluster) ConfigSyncIP(ctx context.Context, ip string) error {
	if ip == "" {
		return NewValidationError("config sync ip is required")
	}

	attrs := []attribute.KeyValue{attribute.String("cluster.configsync_ip", ip)}
	return c.run(ctx, "config-sync-ip", attrs, func(ctx context.Context) error {
		hostname, err := c.Hostname(ctx)
		if err != nil {
			return err
		}
		if _, err := c.exec.Modify(ctx, devicePath+commonPath(hostname), configSyncIPBody{ConfigsyncIP: ip}, restapi.WithoutRetry()); err != nil {
			return err
		}
		c.wrote("config-sync-ip", true, zap.String("hostname", hostname), zap.String("ip", ip))
		return nil
	})
}

// SyncCommand renders the config-sync arguments for direction and group.
func SyncCommand(direction, group string, forceFullLoadPush bool) string {
	parts := []string{"config-sync"}
	if forceFullLoadPush {
		parts = append(parts, "force-full-load-push")
	}
	return strings.Join(append(parts, direction, group), " ")
}

// Sync runs a config sync of group in direction.
func (c *Cluster) Sync(ctx context.Context, direction, group string, forceFullLoadPush bool) error {
	if direction != SyncToGroup && direction != SyncFromGroup {
		return NewValidationError("direction must be to-group or from-group")
	}
	if group == "" {
		return NewValidationError("device group is required")
	}

	args := SyncCommand(direction, group, forceFullLoadPush)
	attrs := []attribute.KeyValue{attribute.String("cluster.sync_args", args)}
	return c.run(ctx, "sync", attrs, func(ctx context.Context) error {
		if _, err := c.exec.Create(ctx, cmCommandPath, runCommand{Command: "run", UtilCmdArgs: args}, restapi.WithoutRetry()); err != nil {
			return err
		}
		c.wrote("sync", true, zap.String("args", args))
		return nil
	})
}
