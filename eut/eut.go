// Package eut configures the grid support functions of an inverter under test over Modbus TCP.
package eut

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/dercompliance/bench"
	"github.com/cepro/dercompliance/modbusaccess"
	"github.com/cepro/dercompliance/steps"
	"github.com/grid-x/modbus"
)

type Inverter struct {
	host    string
	handler *modbus.TCPClientHandler // nil when the client was given
	client  modbus.Client
	logger  *slog.Logger
}

var _ bench.EUT = (*Inverter)(nil)

func New(host string, unitID uint8) (*Inverter, error) {
	handler := modbus.NewTCPClientHandler(host)
	handler.Timeout = 10 * time.Second
	handler.SlaveID = unitID

	slog.Info("Connecting to EUT", "host", host)
	err := handler.Connect()
	if err != nil {
		return nil, fmt.Errorf("connect to eut: %w", err)
	}

	inverter := newWithClient(modbus.NewClient(handler), host)
	inverter.handler = handler
	return inverter, nil
}

func newWithClient(client modbus.Client, host string) *Inverter {
	return &Inverter{
		host:   host,
		client: client,
		logger: slog.Default().With("component", "eut", "host", host),
	}
}

// ApplyCurve writes the curve for the function and makes it the only enabled grid support function. The function is
// disabled while its curve is rewritten.
func (e *Inverter) ApplyCurve(settings bench.CurveSettings) error {
	block, ok := curveBlocks()[settings.Function]
	if !ok {
		return fmt.Errorf("function '%s' cannot be configured on the eut", settings.Function)
	}
	if len(settings.X) != len(settings.Y) || len(settings.X) < 2 || len(settings.X) > maxPoints {
		return fmt.Errorf("curve needs 2 to %d matching x and y breakpoints, got %d and %d", maxPoints, len(settings.X), len(settings.Y))
	}

	for function, other := range curveBlocks() {
		if function == settings.Function {
			continue
		}
		err := modbusaccess.WriteRegister(e.client, other.Registers["Ena"], uint16(0))
		if err != nil {
			return fmt.Errorf("disable %s: %w", function, err)
		}
	}

	names := []string{"Ena", "NPt", "RspTms"}
	vals := map[string]interface{}{
		"Ena":    uint16(0),
		"NPt":    uint16(len(settings.X)),
		"RspTms": settings.ResponseTime.Seconds(),
	}
	if _, ok := block.Registers["VRef"]; ok {
		names = append(names, "VRef")
		vals["VRef"] = percent(settings.VRef)
	}
	for i := range settings.X {
		x, y := pointName("X", i), pointName("Y", i)
		names = append(names, x, y)
		vals[x] = percent(settings.X[i])
		vals[y] = percent(settings.Y[i])
	}

	err := modbusaccess.WriteRegisters(e.client, block, names, vals)
	if err != nil {
		return fmt.Errorf("write %s curve: %w", settings.Function, err)
	}
	err = modbusaccess.WriteRegister(e.client, block.Registers["Ena"], uint16(1))
	if err != nil {
		return fmt.Errorf("enable %s: %w", settings.Function, err)
	}

	e.logger.Info("Applied curve", "function", settings.Function, "x", settings.X, "y", settings.Y, "responseTime", settings.ResponseTime)
	return nil
}

func (e *Inverter) ConfigureStayConnected(high, low bench.StayConnected) error {
	for _, setting := range []struct {
		block modbusaccess.RegisterBlock
		curve bench.StayConnected
	}{
		{highVoltageStayConnectedBlock, high},
		{lowVoltageStayConnectedBlock, low},
	} {
		ena := uint16(0)
		if setting.curve.Enable {
			ena = 1
		}
		err := modbusaccess.WriteRegisters(e.client, setting.block, stayConnectedRegisters, map[string]interface{}{
			"ActCrv": uint16(setting.curve.ActiveCurve),
			"Tms1":   setting.curve.Tms1,
			"V1":     setting.curve.V1,
			"Tms2":   setting.curve.Tms2,
			"V2":     setting.curve.V2,
			"Ena":    ena,
		})
		if err != nil {
			return fmt.Errorf("write %s: %w", setting.block.Name, err)
		}
	}
	e.logger.Info("Configured stay connected", "high", high.V1, "low", low.V1)
	return nil
}

// CurveStatus reads back whether each grid support function is enabled.
func (e *Inverter) CurveStatus() (map[steps.Function]bool, error) {
	status := make(map[steps.Function]bool)
	for function, block := range curveBlocks() {
		metrics, err := modbusaccess.PollBlock(e.client, nil, block)
		if err != nil {
			return nil, fmt.Errorf("poll %s: %w", function, err)
		}
		status[function] = metrics["Ena"].(uint16) == 1
	}
	return status, nil
}

func (e *Inverter) Close() error {
	if e.handler == nil {
		return nil
	}
	return e.handler.Close()
}

func curveBlocks() map[steps.Function]modbusaccess.RegisterBlock {
	return map[steps.Function]modbusaccess.RegisterBlock{
		steps.VoltWatt: voltWattBlock,
		steps.VoltVar:  voltVarBlock,
		steps.FreqWatt: freqWattBlock,
	}
}

func percent(pu float64) float64 {
	return pu * 100
}
