package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/herlein/rflab/pkg/signal"
)

// Device is an open pulse-streaming dongle.
type Device struct {
	usbDevice    *gousb.Device
	usbConfig    *gousb.Config
	usbInterface *gousb.Interface
	epIn         *gousb.InEndpoint
	epOut        *gousb.OutEndpoint

	Serial  string
	Product string

	leftover []byte
}

// Open opens the first pulse-streaming dongle on the bus.
func Open(ctx *gousb.Context) (*Device, error) {
	usbDev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(ProductID))
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	if usbDev == nil {
		return nil, ErrNoDevice
	}

	product, _ := usbDev.Product()
	serial, _ := usbDev.SerialNumber()

	usbDev.SetAutoDetach(true)

	config, err := usbDev.Config(1)
	if err != nil {
		usbDev.Close()
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}

	iface, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		usbDev.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	epIn, err := iface.InEndpoint(EndpointNum)
	if err != nil {
		iface.Close()
		config.Close()
		usbDev.Close()
		return nil, fmt.Errorf("failed to get IN endpoint: %w", err)
	}

	epOut, err := iface.OutEndpoint(EndpointNum)
	if err != nil {
		iface.Close()
		config.Close()
		usbDev.Close()
		return nil, fmt.Errorf("failed to get OUT endpoint: %w", err)
	}

	return &Device{
		usbDevice:    usbDev,
		usbConfig:    config,
		usbInterface: iface,
		epIn:         epIn,
		epOut:        epOut,
		Serial:       serial,
		Product:      product,
		leftover:     make([]byte, 0, PulseRecordSize),
	}, nil
}

// Close releases all USB resources.
func (d *Device) Close() error {
	if d.usbInterface != nil {
		d.usbInterface.Close()
	}
	if d.usbConfig != nil {
		d.usbConfig.Close()
	}
	if d.usbDevice != nil {
		return d.usbDevice.Close()
	}
	return nil
}

// String identifies the device for logs.
func (d *Device) String() string {
	return fmt.Sprintf("%s (serial %s)", d.Product, d.Serial)
}

// Tune applies a capture profile: carrier frequency and demodulator
// settings are pushed over the control endpoint.
func (d *Device) Tune(p *Profile) error {
	if !IsValidFrequency(p.FrequencyHz) {
		return fmt.Errorf("capture: frequency %d Hz outside supported bands", p.FrequencyHz)
	}

	freq2, freq1, freq0 := CalcFreqRegs(p.FrequencyHz)
	cmd := []byte{cmdTune, freq2, freq1, freq0, p.Modulation, p.ChannelBW}

	if _, err := d.epOut.Write(cmd); err != nil {
		return fmt.Errorf("failed to tune: %w", err)
	}
	return nil
}

// Firmware command bytes on the OUT endpoint
const (
	cmdTune  = 0x01
	cmdStart = 0x02
	cmdStop  = 0x03
)

// StartStreaming tells the firmware to begin pushing pulse records.
func (d *Device) StartStreaming() error {
	if _, err := d.epOut.Write([]byte{cmdStart}); err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	return nil
}

// StopStreaming tells the firmware to stop pushing pulse records.
func (d *Device) StopStreaming() error {
	if _, err := d.epOut.Write([]byte{cmdStop}); err != nil {
		return fmt.Errorf("failed to stop streaming: %w", err)
	}
	return nil
}

// ReadPulses blocks on the IN endpoint for up to timeout and decodes
// complete pulse records into out, carrying partial records across
// reads. It returns the number of pulses decoded.
func (d *Device) ReadPulses(out []signal.Pulse, timeout time.Duration) (int, error) {
	buf := make([]byte, 512)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := d.epIn.ReadContext(ctx, buf)
	if err != nil {
		return 0, fmt.Errorf("failed to read endpoint: %w", err)
	}

	stream := append(d.leftover, buf[:n]...)
	pulses, consumed, err := ParsePulseRecords(out, stream)
	if err != nil {
		d.leftover = d.leftover[:0]
		return pulses, err
	}

	d.leftover = append(d.leftover[:0], stream[consumed:]...)
	return pulses, nil
}
