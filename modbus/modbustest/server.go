// Package modbustest provides a Modbus TCP server holding a bank of holding registers, for testing clients against.
package modbustest

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// Server serves reads and writes of its holding registers. Any address can be read, unwritten registers are zero.
type Server struct {
	Addr string

	server *modbus.ModbusServer

	mu        sync.Mutex
	registers map[uint16]uint16
	writes    int
}

// NewServer starts a server listening on a free port on localhost.
func NewServer() (*Server, error) {
	addr, err := freeAddr()
	if err != nil {
		return nil, err
	}
	srv := &Server{
		Addr:      addr,
		registers: make(map[uint16]uint16),
	}
	srv.server, err = modbus.NewServer(&modbus.ServerConfiguration{
		URL:        fmt.Sprintf("tcp://%s", addr),
		Timeout:    10 * time.Second,
		MaxClients: 4,
	}, srv)
	if err != nil {
		return nil, fmt.Errorf("create modbus server: %w", err)
	}
	err = srv.server.Start()
	if err != nil {
		return nil, fmt.Errorf("start modbus server: %w", err)
	}
	return srv, nil
}

func freeAddr() (string, error) {
	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return "", err
	}
	defer lis.Close()
	return lis.Addr().String(), nil
}

func (s *Server) Close() error {
	return s.server.Stop()
}

// Register returns the value of the holding register at `addr`.
func (s *Server) Register(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[addr]
}

// SetRegister sets the holding register at `addr`.
func (s *Server) SetRegister(addr uint16, val uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers[addr] = val
}

// Float returns the float32 held high word first in the two registers from `addr`.
func (s *Server) Float(addr uint16) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	bits := uint32(s.registers[addr])<<16 | uint32(s.registers[addr+1])
	return float64(math.Float32frombits(bits))
}

// Floats returns `n` consecutive floats from `addr`.
func (s *Server) Floats(addr uint16, n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = s.Float(addr + uint16(2*i))
	}
	return vals
}

// SetFloat stores `val` as a float32 in the two registers from `addr`.
func (s *Server) SetFloat(addr uint16, val float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, math.Float32bits(float32(val)))
	s.registers[addr] = binary.BigEndian.Uint16(bytes[0:2])
	s.registers[addr+1] = binary.BigEndian.Uint16(bytes[2:4])
}

// Writes returns the number of write requests served.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Server) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.IsWrite {
		s.writes++
		for i, val := range req.Args {
			s.registers[req.Addr+uint16(i)] = val
		}
	}

	res := make([]uint16, req.Quantity)
	for i := range res {
		res[i] = s.registers[req.Addr+uint16(i)]
	}
	return res, nil
}

func (s *Server) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *Server) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *Server) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}
