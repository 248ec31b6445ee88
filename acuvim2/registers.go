package acuvim2

import "github.com/cepro/dercompliance/modbusaccess"

var blocks = []modbusaccess.RegisterBlock{
	{
		Name:         "Power",
		StartAddr:    12288,
		NumRegisters: 60,
		Registers: map[string]modbusaccess.Register{
			"Frequency": {StartAddr: 12288, DataType: modbusaccess.FloatType},

			"VoltagePhA": {StartAddr: 12290, DataType: modbusaccess.FloatType, ScalingFunc: scaleVoltage},
			"VoltagePhB": {StartAddr: 12292, DataType: modbusaccess.FloatType, ScalingFunc: scaleVoltage},
			"VoltagePhC": {StartAddr: 12294, DataType: modbusaccess.FloatType, ScalingFunc: scaleVoltage},
			// Line voltages and their average are available here, but are not of interest at the moment
			"CurrentPhA": {StartAddr: 12306, DataType: modbusaccess.FloatType, ScalingFunc: scaleCurrent},
			"CurrentPhB": {StartAddr: 12308, DataType: modbusaccess.FloatType, ScalingFunc: scaleCurrent},
			"CurrentPhC": {StartAddr: 12310, DataType: modbusaccess.FloatType, ScalingFunc: scaleCurrent},

			"PowerPhAActive": {StartAddr: 12316, DataType: modbusaccess.FloatType, ScalingFunc: scalePower},
			"PowerPhBActive": {StartAddr: 12318, DataType: modbusaccess.FloatType, ScalingFunc: scalePower},
			"PowerPhCActive": {StartAddr: 12320, DataType: modbusaccess.FloatType, ScalingFunc: scalePower},

			"PowerPhAReactive": {StartAddr: 12324, DataType: modbusaccess.FloatType, ScalingFunc: scalePower},
			"PowerPhBReactive": {StartAddr: 12326, DataType: modbusaccess.FloatType, ScalingFunc: scalePower},
			"PowerPhCReactive": {StartAddr: 12328, DataType: modbusaccess.FloatType, ScalingFunc: scalePower},

			"PowerPhAApparent": {StartAddr: 12332, DataType: modbusaccess.FloatType, ScalingFunc: scalePower},
			"PowerPhBApparent": {StartAddr: 12334, DataType: modbusaccess.FloatType, ScalingFunc: scalePower},
			"PowerPhCApparent": {StartAddr: 12336, DataType: modbusaccess.FloatType, ScalingFunc: scalePower},

			"PowerFactorPhA": {StartAddr: 12340, DataType: modbusaccess.FloatType},
			"PowerFactorPhB": {StartAddr: 12342, DataType: modbusaccess.FloatType},
			"PowerFactorPhC": {StartAddr: 12344, DataType: modbusaccess.FloatType},
		},
	},
}

// The meter reports primary side values once scaled by the installed transformer ratios.

func scaleVoltage(scaler modbusaccess.Scaler, val interface{}) interface{} {
	a := scaler.(*Meter)
	return val.(float64) * (a.pt1 / a.pt2)
}

func scaleCurrent(scaler modbusaccess.Scaler, val interface{}) interface{} {
	a := scaler.(*Meter)
	return val.(float64) * (a.ct1 / a.ct2)
}

func scalePower(scaler modbusaccess.Scaler, val interface{}) interface{} {
	a := scaler.(*Meter)
	return val.(float64) * (a.pt1 / a.pt2) * (a.ct1 / a.ct2)
}
