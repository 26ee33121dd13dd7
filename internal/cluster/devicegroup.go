package cluster

import (
	"context"
	"encoding/json"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/restapi"
)

const deviceGroupRoot = "/tm/cm/device-group/"

// Device group types
const (
	TypeSyncFailover = "sync-failover"
	TypeSyncOnly     = "sync-only"
)

// DeviceGroupOptions are the optional settings of a new device group.
// Every field defaults to off.
type DeviceGroupOptions struct {
	AutoSync        bool
	SaveOnAutoSync  bool
	NetworkFailover bool
	FullLoadOnSync  bool
	AsmSync         bool
}

type deviceGroupBody struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Devices         []string `json:"devices"`
	AutoSync        string   `json:"autoSync"`
	SaveOnAutoSync  bool     `json:"saveOnAutoSync"`
	NetworkFailover string   `json:"networkFailover"`
	FullLoadOnSync  bool     `json:"fullLoadOnSync"`
	AsmSync         string   `json:"asmSync"`
}

type deviceRef struct {
	Name string `json:"name"`
}

// deviceGroupDevices is the member collection, sent either as
// {"items":[...]} or as a bare array.
type deviceGroupDevices struct {
	Items []deviceRef `json:"items"`
}

func (d *deviceGroupDevices) UnmarshalJSON(data []byte) error {
	var items []deviceRef
	if err := json.Unmarshal(data, &items); err == nil {
		d.Items = items
		return nil
	}
	type collection deviceGroupDevices
	var c collection
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	*d = deviceGroupDevices(c)
	return nil
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func devicesPath(group string) string {
	return deviceGroupRoot + commonPath(group) + "/devices"
}

// CreateDeviceGroup creates a device group of type groupType containing
// devices. A nil opts leaves every option off.
func (c *Cluster) CreateDeviceGroup(ctx context.Context, name, groupType string, devices []string, opts *DeviceGroupOptions) error {
	if name == "" {
		return NewValidationError("name is required")
	}
	if groupType != TypeSyncFailover && groupType != TypeSyncOnly {
		return NewValidationError("type must be sync-failover or sync-only")
	}
	if opts == nil {
		opts = &DeviceGroupOptions{}
	}
	if devices == nil {
		devices = []string{}
	}

	body := deviceGroupBody{
		Name:            name,
		Type:            groupType,
		Devices:         devices,
		AutoSync:        enabled(opts.AutoSync),
		SaveOnAutoSync:  opts.SaveOnAutoSync,
		NetworkFailover: enabled(opts.NetworkFailover),
		FullLoadOnSync:  opts.FullLoadOnSync,
		AsmSync:         enabled(opts.AsmSync),
	}

	attrs := []attribute.KeyValue{
		attribute.String("cluster.device_group", name),
		attribute.String("cluster.device_group_type", groupType),
	}
	return c.run(ctx, "create-device-group", attrs, func(ctx context.Context) error {
		if _, err := c.exec.Create(ctx, deviceGroupRoot, body, restapi.WithoutRetry()); err != nil {
			return err
		}
		c.wrote("create-device-group", true, zap.String("group", name), zap.Strings("devices", devices))
		return nil
	})
}

// DeleteDeviceGroup deletes the device group name.
func (c *Cluster) DeleteDeviceGroup(ctx context.Context, name string) error {
	if name == "" {
		return NewValidationError("name is required")
	}

	attrs := []attribute.KeyValue{attribute.String("cluster.device_group", name)}
	return c.run(ctx, "delete-device-group", attrs, func(ctx context.Context) error {
		if _, err := c.exec.Delete(ctx, deviceGroupRoot+commonPath(name), restapi.WithoutRetry()); err != nil {
			return err
		}
		c.wrote("delete-device-group", true, zap.String("group", name))
		return nil
	})
}

// IsInDeviceGroup reports whether hostname is a member of group.
func (c *Cluster) IsInDeviceGroup(ctx context.Context, hostname, group string) (bool, error) {
	var members deviceGroupDevices
	if err := c.list(ctx, devicesPath(group), &members); err != nil {
		return false, err
	}
	return slices.ContainsFunc(members.Items, func(d deviceRef) bool {
		return d.Name == hostname
	}), nil
}

// AddToDeviceGroup adds hostname to group. Nothing is written when hostname
// is already a member.
func (c *Cluster) AddToDeviceGroup(ctx context.Context, hostname, group string) error {
	_, err := c.EnsureInDeviceGroup(ctx, hostname, group)
	return err
}

// EnsureInDeviceGroup is AddToDeviceGroup, also reporting whether the member
// was created.
func (c *Cluster) EnsureInDeviceGroup(ctx context.Context, hostname, group string) (added bool, err error) {
	if err := validateMembership(hostname, group); err != nil {
		return false, err
	}

	attrs := []attribute.KeyValue{
		attribute.String("cluster.hostname", hostname),
		attribute.String("cluster.device_group", group),
	}
	err = c.run(ctx, "add-to-device-group", attrs, func(ctx context.Context) error {
		added = false
		member, err := c.IsInDeviceGroup(ctx, hostname, group)
		if err != nil {
			return err
		}
		if member {
			c.wrote("add-to-device-group", false, zap.String("hostname", hostname), zap.String("group", group))
			return nil
		}

		if _, err := c.exec.Create(ctx, devicesPath(group), deviceRef{Name: hostname}, restapi.WithoutRetry()); err != nil {
			return err
		}
		added = true
		c.wrote("add-to-device-group", true, zap.String("hostname", hostname), zap.String("group", group))
		return nil
	})
	return added, err
}

// RemoveFromDeviceGroup removes hostname from group. Nothing is written
// when hostname is not a member.
func (c *Cluster) RemoveFromDeviceGroup(ctx context.Context, hostname, group string) error {
	if err := validateMembership(hostname, group); err != nil {
		return err
	}

	attrs := []attribute.KeyValue{
		attribute.String("cluster.hostname", hostname),
		attribute.String("cluster.device_group", group),
	}
	return c.run(ctx, "remove-from-device-group", attrs, func(ctx context.Context) error {
		member, err := c.IsInDeviceGroup(ctx, hostname, group)
		if err != nil {
			return err
		}
		if !member {
			c.wrote("remove-from-device-group", false, zap.String("hostname", hostname), zap.String("group", group))
			return nil
		}

		if _, err := c.exec.Delete(ctx, devicesPath(group)+"/"+hostname, restapi.WithoutRetry()); err != nil {
			return err
		}
		c.wrote("remove-from-device-group", true, zap.String("hostname", hostname), zap.String("group", group))
		return nil
	})
}

func validateMembership(hostname, group string) error {
	if hostname == "" {
		return NewValidationError("hostname is required")
	}
	if group == "" {
		return NewValidationError("device group is required")
	}
	return nil
}
