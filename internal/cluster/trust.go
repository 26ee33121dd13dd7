package cluster

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/muurk/appliancectl/internal/restapi"
)

const (
	trustDomainPath     = "/tm/cm/trust-domain/~Common~Root"
	addToTrustPath      = "/tm/cm/add-to-trust"
	removeFromTrustPath = "/tm/cm/remove-from-trust"
	trustDomainName     = "Root"
)

type trustDomain struct {
	CADevices []string `json:"caDevices"`
}

type addToTrustCommand struct {
	Command    string `json:"command"`
	Name       string `json:"name"`
	CADevice   bool   `json:"caDevice"`
	Device     string `json:"device"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceName string `json:"deviceName"`
}

type removeFromTrustCommand struct {
	Command    string `json:"command"`
	Name       string `json:"name"`
	DeviceName string `json:"deviceName"`
}

// IsInTrust reports whether hostname is a certificate authority device in
// the local trust domain.
func (c *Cluster) IsInTrust(ctx context.Context, hostname string) (bool, error) {
	var domain trustDomain
	if err := c.list(ctx, trustDomainPath, &domain); err != nil {
		return false, err
	}
	return slices.Contains(domain.CADevices, "/Common/"+hostname), nil
}

// AddToTrust adds the peer at peerHost to the local trust domain under
// hostname. Nothing is written when hostname is already trusted.
func (c *Cluster) AddToTrust(ctx context.Context, hostname, peerHost, peerUser, peerPassword string) error {
	_, err := c.EnsureInTrust(ctx, hostname, peerHost, peerUser, peerPassword)
	return err
}

// EnsureInTrust is AddToTrust, also reporting whether the peer was added.
func (c *Cluster) EnsureInTrust(ctx context.Context, hostname, peerHost, peerUser, peerPassword string) (added bool, err error) {
	if hostname == "" {
		return false, NewValidationError("hostname is required")
	}
	if peerHost == "" {
		return false, NewValidationError("peer host is required")
	}

	attrs := []attribute.KeyValue{
		attribute.String("cluster.hostname", hostname),
		attribute.String("cluster.peer", peerHost),
	}
	err = c.run(ctx, "add-to-trust", attrs, func(ctx context.Context) error {
		added = false
		trusted, err := c.IsInTrust(ctx, hostname)
		if err != nil {
			return err
		}
		if trusted {
			c.wrote("add-to-trust", false, zap.String("hostname", hostname))
			return nil
		}

		_, err = c.exec.Create(ctx, addToTrustPath, addToTrustCommand{
			Command:    "run",
			Name:       trustDomainName,
			CADevice:   true,
			Device:     peerHost,
			Username:   peerUser,
			Password:   peerPassword,
			DeviceName: hostname,
		}, restapi.WithoutRetry())
		if err != nil {
			return err
		}
		added = true
		c.wrote("add-to-trust", true, zap.String("hostname", hostname), zap.String("peer", peerHost))
		return nil
	})
	return added, err
}

// RemoveFromTrust removes hostname from the local trust domain. Nothing is
// written when hostname is not trusted.
func (c *Cluster) RemoveFromTrust(ctx context.Context, hostname string) error {
	if hostname == "" {
		return NewValidationError("hostname is required")
	}

	attrs := []attribute.KeyValue{attribute.String("cluster.hostname", hostname)}
	return c.run(ctx, "remove-from-trust", attrs, func(ctx context.Context) error {
		trusted, err := c.IsInTrust(ctx, hostname)
		if err != nil {
			return err
		}
		if !trusted {
			c.wrote("remove-from-trust", false, zap.String("hostname", hostname))
			return nil
		}

		_, err = c.exec.Create(ctx, removeFromTrustPath, removeFromTrustCommand{
			Command:    "run",
			Name:       trustDomainName,
			DeviceName: hostname,
		}, restapi.WithoutRetry())
		if err != nil {
			return err
		}
		c.wrote("remove-from-trust", true, zap.String("hostname", hostname))
		return nil
	})
}
