package device

import (
	"context"
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc/v3"

	"github.com/charlie0129/radiocal/pkg/calibration"
)

// statusSuccess is the module's success status byte.
const statusSuccess = 0x01

var _ Controller = &RPC{}

// RPC talks JSON-RPC 2.0 over HTTP to the bench bridge service attached to a module.
type RPC struct {
	endpoint   string
	httpClient *http.Client
	rpcClient  jsonrpc.RPCClient
}

// NewRPC returns a client for the bridge at endpoint, e.g. http://bench-3:8080/rpc.
// timeout bounds a single call and must cover the longest burst.
func NewRPC(endpoint string, timeout time.Duration) *RPC {
	httpClient := &http.Client{Timeout: timeout}
	return &RPC{
		endpoint:   endpoint,
		httpClient: httpClient,
		rpcClient: jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
			HTTPClient: httpClient,
		}),
	}
}

// statusResult is the common result shape: the module status byte plus an
// optional integer value.
type statusResult struct {
	Status int `json:"status"`
	Value  int `json:"value"`
}

// call invokes method with params sent as a JSON object, or without params when nil,
// and decodes the result into result unless it is nil.
func (c *RPC) call(ctx context.Context, method string, params any, result any) error {
	if c.endpoint == "" {
		return ErrNotConnected
	}

	logrus.WithFields(logrus.Fields{
		"method": method,
		"params": params,
	}).Trace("sending rpc request")

	var (
		resp *jsonrpc.RPCResponse
		err  error
	)
	if params == nil {
		resp, err = c.rpcClient.Call(ctx, method)
	} else {
		resp, err = c.rpcClient.Call(ctx, method, params)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to call %s", method)
	}
	if resp.Error != nil {
		return pkgerrors.Wrapf(resp.Error, "%s failed", method)
	}
	if result == nil {
		return nil
	}
	if err := resp.GetObject(result); err != nil {
		return pkgerrors.Wrapf(err, "failed to decode %s result", method)
	}
	return nil
}

// callStatus performs a call whose result is a statusResult and checks the status byte.
func (c *RPC) callStatus(ctx context.Context, method string, params any) (int, error) {
	var res statusResult
	if err := c.call(ctx, method, params, &res); err != nil {
		return 0, err
	}
	if res.Status != statusSuccess {
		return 0, fmt.Errorf("%w: %s returned 0x%02X", ErrStatus, method, res.Status)
	}
	return res.Value, nil
}

func (c *RPC) Transition(ctx context.Context, state calibration.State, m calibration.Measurement) (calibration.Status, calibration.State, error) {
	params := struct {
		State       int      `json:"state"`
		Measurement *float64 `json:"measurement"`
	}{State: int(state)}
	if m.Present {
		v := m.Value
		params.Measurement = &v
	}

	var res struct {
		Status int `json:"status"`
		State  int `json:"state"`
	}
	if err := c.call(ctx, "radio_cal_state", params, &res); err != nil {
		return calibration.StatusUndefinedFailure, state, err
	}
	return calibration.Status(res.Status), calibration.State(res.State), nil
}

func (c *RPC) TransmitBurst(ctx context.Context, packets int) error {
	_, err := c.callStatus(ctx, "transmit_packets", map[string]int{"count": packets})
	return err
}

func (c *RPC) SetChannel(ctx context.Context, channel int) error {
	_, err := c.callStatus(ctx, "set_radio_channel", map[string]int{"radio": 0, "channel": channel})
	return err
}

func (c *RPC) Temperature(ctx context.Context) (int, error) {
	return c.callStatus(ctx, "temperature", nil)
}

// GainControl reads the TXGC value currently in use: the index register is one-based
// into the gain control table.
func (c *RPC) GainControl(ctx context.Context) (int, error) {
	idx, err := c.ReadRegister(ctx, RegTxgcIndex)
	if err != nil {
		return 0, err
	}
	regs := TxgcRegisters()
	if idx < 1 || int(idx) > len(regs) {
		return 0, fmt.Errorf("txgc index %d out of range", idx)
	}
	gc, err := c.ReadRegister(ctx, regs[idx-1])
	if err != nil {
		return 0, err
	}
	return int(gc), nil
}

func (c *RPC) PDOut(ctx context.Context, delay, nsamples int) (int, error) {
	return c.callStatus(ctx, "get_pdout", map[string]int{"delay": delay, "nsamples": nsamples})
}

func (c *RPC) ReadRegister(ctx context.Context, addr uint32) (uint32, error) {
	v, err := c.callStatus(ctx, "rd", map[string]uint32{"addr": addr})
	return uint32(v), err
}

func (c *RPC) WriteRegister(ctx context.Context, addr, value uint32) error {
	_, err := c.callStatus(ctx, "wr", map[string]uint32{"addr": addr, "value": value})
	return err
}

func (c *RPC) SetPowerCompensation(ctx context.Context, enabled bool) error {
	_, err := c.callStatus(ctx, "set_power_comp_enable", map[string]bool{"enabled": enabled})
	return err
}

func (c *RPC) DFSOverride(ctx context.Context, mode int) error {
	_, err := c.callStatus(ctx, "dfs_override", map[string]int{"mode": mode})
	return err
}

func (c *RPC) SetTPMMode(ctx context.Context, mode int) error {
	_, err := c.callStatus(ctx, "set_tpm_mode", map[string]int{"mode": mode})
	return err
}

func (c *RPC) SetTransmitPower(ctx context.Context, power int) error {
	_, err := c.callStatus(ctx, "set_transmit_power", map[string]int{"power": power})
	return err
}

func (c *RPC) Describe(ctx context.Context) (*Descriptor, error) {
	var res struct {
		Status int `json:"status"`
		Descriptor
	}
	if err := c.call(ctx, "mfg_descriptor", nil, &res); err != nil {
		return nil, err
	}
	if res.Status != statusSuccess {
		return nil, fmt.Errorf("%w: mfg_descriptor returned 0x%02X", ErrStatus, res.Status)
	}
	d := res.Descriptor
	return &d, nil
}

func (c *RPC) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
