package modbusaccess

import (
	"fmt"
	"sync"

	"github.com/grid-x/modbus"
)

// FakeClient is an in-memory bank of holding registers that satisfies the parts of `modbus.Client` used by this
// package. Calling any other method panics.
type FakeClient struct {
	modbus.Client

	lock      sync.Mutex
	registers map[uint16]uint16
	Writes    int // count of write requests
}

func NewFakeClient() *FakeClient {
	return &FakeClient{registers: make(map[uint16]uint16)}
}

// Set stores the value in the bank using the register's data type.
func (f *FakeClient) Set(register Register, val interface{}) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.store(register.StartAddr, register.DataType.toBytesFunc(val))
}

// Get returns the value of the register decoded using its data type.
func (f *FakeClient) Get(register Register) interface{} {
	f.lock.Lock()
	defer f.lock.Unlock()
	return register.DataType.fromBytesFunc(f.load(register.StartAddr, register.DataType.dataLength/2))
}

func (f *FakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.load(address, quantity), nil
}

func (f *FakeClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	if int(quantity)*2 != len(value) {
		return nil, fmt.Errorf("quantity %d does not match %d bytes", quantity, len(value))
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.store(address, value)
	f.Writes++
	return nil, nil
}

func (f *FakeClient) store(address uint16, bytes []byte) {
	for i := 0; i+1 < len(bytes); i += 2 {
		f.registers[address+uint16(i/2)] = uint16(bytes[i])<<8 | uint16(bytes[i+1])
	}
}

func (f *FakeClient) load(address, quantity uint16) []byte {
	bytes := make([]byte, 0, quantity*2)
	for i := uint16(0); i < quantity; i++ {
		val := f.registers[address+i]
		bytes = append(bytes, byte(val>>8), byte(val))
	}
	return bytes
}
