//go:build linux

package main

import (
	"fmt"
	"image"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// TFT holds the ILI9341 display state.
type TFT struct {
	spiDev    spi.Conn
	dc        gpio.PinOut
	backlight gpio.PinOut
	width     int
	height    int
	img       *image.RGBA
	buf       []byte
}

const (
	// ILI9341 commands
	cmdSWRESET = 0x01
	cmdSLPOUT  = 0x11
	cmdDISPOFF = 0x28
	cmdDISPON  = 0x29
	cmdCASet   = 0x2A
	cmdPASet   = 0x2B
	cmdRAMWR   = 0x2C
	cmdMADCTL  = 0x36
	cmdPIXFMT  = 0x3A

	// MY|MX|MV|BGR: landscape, connector on the left.
	madctlLandscape = 0xE8

	// SPI driver has a max transfer size of 4096 bytes.
	chunkSize = 4096
)

// NewTFT initializes the TFT display on SPI1 CS0 with DC on GPIO39 and the
// backlight on GPIO12.
func NewTFT() (*TFT, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph.io init: %w", err)
	}

	port, err := spireg.Open("/dev/spidev1.0")
	if err != nil {
		return nil, fmt.Errorf("open SPI: %w", err)
	}
	conn, err := port.Connect(16*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("connect SPI: %w", err)
	}

	dc := gpioreg.ByName("GPIO39")
	if dc == nil {
		return nil, fmt.Errorf("failed to open GPIO39 (DC pin)")
	}
	backlight := gpioreg.ByName("GPIO12")
	if backlight == nil {
		return nil, fmt.Errorf("failed to open GPIO12 (backlight pin)")
	}

	tft := &TFT{
		spiDev:    conn,
		dc:        dc,
		backlight: backlight,
		width:     displayWidth,
		height:    displayHeight,
		img:       image.NewRGBA(image.Rect(0, 0, displayWidth, displayHeight)),
		buf:       make([]byte, chunkSize),
	}
	if err := tft.init(); err != nil {
		return nil, fmt.Errorf("init display: %w", err)
	}

	slog.Info("TFT display initialized", "width", displayWidth, "height", displayHeight)
	return tft, nil
}

// init runs the ILI9341 power-up sequence.
func (t *TFT) init() error {
	if err := t.backlight.Out(gpio.High); err != nil {
		return fmt.Errorf("set backlight: %w", err)
	}

	seq := []struct {
		cmd  byte
		data []byte
	}{
		{cmdSWRESET, nil},
		{cmdSLPOUT, nil},
		{0xC0, []byte{0x23}},       // power control 1
		{0xC1, []byte{0x10}},       // power control 2
		{0xC5, []byte{0x3E, 0x28}}, // VCM control 1
		{0xC7, []byte{0x86}},       // VCM control 2
		{cmdMADCTL, []byte{madctlLandscape}},
		{cmdPIXFMT, []byte{0x55}},              // RGB565
		{0xB1, []byte{0x00, 0x18}},             // frame rate
		{0xB6, []byte{0x08, 0x82, 0x27}},       // display function
		{0xF2, []byte{0x00}},                   // 3-gamma off
		{0x26, []byte{0x01}},                   // gamma curve 1
		{cmdDISPON, nil},
	}
	for _, s := range seq {
		if err := t.writeCommand(s.cmd, s.data...); err != nil {
			return fmt.Errorf("command 0x%02X: %w", s.cmd, err)
		}
	}

	slog.Debug("ILI9341 initialization complete")
	return nil
}

// writeCommand writes a command and optional data bytes to the display.
func (t *TFT) writeCommand(cmd byte, data ...byte) error {
	// DC low = command
	if err := t.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := t.spiDev.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := t.dc.Out(gpio.High); err != nil {
		return err
	}
	return t.spiDev.Tx(data, nil)
}

// setWindow sets the drawing window on the display.
func (t *TFT) setWindow(x0, y0, x1, y1 int) error {
	if err := t.writeCommand(cmdCASet, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	return t.writeCommand(cmdPASet, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1))
}

// Render draws st and pushes the frame to the panel.
func (t *TFT) Render(st *Status) error {
	drawStatus(t.img, st)
	if err := t.Display(); err != nil {
		return fmt.Errorf("render to TFT: %w", err)
	}
	slog.Debug("TFT display updated", "slide", slideLabel(st))
	return nil
}

// Display pushes the internal image buffer to the screen.
func (t *TFT) Display() error {
	if err := t.setWindow(0, 0, t.width-1, t.height-1); err != nil {
		return err
	}
	if err := t.writeCommand(cmdRAMWR); err != nil {
		return err
	}
	// DC high for pixel data
	if err := t.dc.Out(gpio.High); err != nil {
		return err
	}

	n := 0
	pix := t.img.Pix
	for i := 0; i < len(pix); i += 4 {
		rgb565 := toRGB565(pix[i], pix[i+1], pix[i+2])
		t.buf[n] = byte(rgb565 >> 8)
		t.buf[n+1] = byte(rgb565)
		n += 2
		if n == len(t.buf) {
			if err := t.spiDev.Tx(t.buf, nil); err != nil {
				return err
			}
			n = 0
		}
	}
	if n > 0 {
		return t.spiDev.Tx(t.buf[:n], nil)
	}
	return nil
}

// Close blanks the panel and turns off the backlight.
func (t *TFT) Close() error {
	if err := t.writeCommand(cmdDISPOFF); err != nil {
		return err
	}
	return t.backlight.Out(gpio.Low)
}
