package sensor

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// powerOnReset is the DS18B20 scratchpad value before the first conversion.
const powerOnReset = 85000

// W1Thermometer reads a DS18B20 through the w1-therm kernel driver.
type W1Thermometer struct {
	path string
}

// NewW1Thermometer resolves pattern (a w1_slave path or glob) to one device.
func NewW1Thermometer(pattern string) (*W1Thermometer, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("w1 pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("w1: no device matches %q", pattern)
	}
	return &W1Thermometer{path: matches[0]}, nil
}

// Path returns the resolved w1_slave file.
func (w *W1Thermometer) Path() string {
	return w.path
}

// Temperature reads and parses w1_slave.
func (w *W1Thermometer) Temperature() (float64, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", w.path, err)
	}
	return parseW1Slave(data)
}

// parseW1Slave parses the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(data []byte) (float64, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: short w1_slave", ErrInvalidReading)
	}
	if !strings.HasSuffix(lines[0], "YES") {
		return 0, fmt.Errorf("%w: crc check failed", ErrInvalidReading)
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, fmt.Errorf("%w: no t= field", ErrInvalidReading)
	}
	milli, err := strconv.Atoi(lines[1][i+2:])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}
	if milli == powerOnReset {
		return 0, fmt.Errorf("%w: power-on reset value", ErrInvalidReading)
	}
	return float64(milli) / 1000, nil
}
