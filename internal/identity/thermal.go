package identity

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ThermalPath is the kernel thermal zone for the SoC.
var ThermalPath = "/sys/class/thermal/thermal_zone0/temp"

// CPUTemp reads the SoC temperature in Celsius.
func CPUTemp() (float64, error) {
	data, err := os.ReadFile(ThermalPath)
	if err != nil {
		return 0, fmt.Errorf("identity: read %s: %w", ThermalPath, err)
	}
	millideg, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("identity: parse temperature: %w", err)
	}
	return float64(millideg) / 1000.0, nil
}
