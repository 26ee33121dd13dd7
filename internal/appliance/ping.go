package appliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/muurk/appliancectl/internal/restapi"
	"github.com/muurk/appliancectl/internal/retry"
)

const pingPath = "/tm/util/ping"

var receivedPattern = regexp.MustCompile(`transmitted, (\d+) received`)

// ErrInvalidPingResponse is returned when the ping output has no statistics line.
var ErrInvalidPingResponse = errors.New("invalid response from ping")

type pingCommand struct {
	Command     string `json:"command"`
	UtilCmdArgs string `json:"utilCmdArgs"`
}

type pingResult struct {
	CommandResult string `json:"commandResult"`
}

// Ping asks the appliance to ping address, retrying with p until at least
// one reply is received.
func (a *Appliance) Ping(ctx context.Context, address string, p retry.Policy) error {
	if address == "" {
		return errors.New("address is required")
	}
	if err := a.AwaitReady(ctx); err != nil {
		return err
	}

	return a.retrier.Do(ctx, "ping", p, func(ctx context.Context) error {
		raw, err := a.exec.Create(ctx, pingPath, pingCommand{
			Command:     "run",
			UtilCmdArgs: "-c 2 " + address,
		}, restapi.WithoutRetry())
		if err != nil {
			return err
		}
		return checkPing(address, raw)
	})
}

func checkPing(address string, raw json.RawMessage) error {
	var res pingResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return ErrInvalidPingResponse
		}
	}
	m := receivedPattern.FindStringSubmatch(res.CommandResult)
	if m == nil {
		return ErrInvalidPingResponse
	}
	received, err := strconv.Atoi(m[1])
	if err != nil {
		return ErrInvalidPingResponse
	}
	if received == 0 {
		return fmt.Errorf("%s is not reachable", address)
	}
	return nil
}
