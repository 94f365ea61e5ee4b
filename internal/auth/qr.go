// Package auth renders gateway pairing material so an instance can be linked
// from a phone.
package auth

import (
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
	waLog "go.mau.fi/whatsmeow/util/log"

	"syncnexus/internal/service/gateway"
)

// QRHandler displays pairing codes.
type QRHandler struct {
	log waLog.Logger
	out io.Writer
}

// NewQRHandler creates a QRHandler writing to out.
func NewQRHandler(log waLog.Logger, out io.Writer) *QRHandler {
	return &QRHandler{log: log.Sub("QR"), out: out}
}

// Show prints the QR code (and numeric code, if any) of p. It reports
// whether anything needed scanning.
func (h *QRHandler) Show(instance string, p *gateway.Pairing) (bool, error) {
	if p.Code == "" {
		h.log.Infof("Instance %s needs no pairing (state %q)", instance, p.State)
		return false, nil
	}

	art, err := Render(p.Code)
	if err != nil {
		h.log.Errorf("Failed to generate QR code: %v", err)
		fmt.Fprintln(h.out, "QR Code content:", p.Code)
		return true, err
	}

	h.log.Infof("Scan the QR code below with WhatsApp (Linked Devices) to link %s", instance)
	fmt.Fprintln(h.out)
	fmt.Fprintln(h.out, art)
	if p.PairingCode != "" {
		fmt.Fprintf(h.out, "Pairing code: %s\n", p.PairingCode)
	}
	return true, nil
}

// Render returns code as terminal block art.
func Render(code string) (string, error) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return qr.ToSmallString(false), nil
}

// SaveQRToFile saves the QR code as a PNG.
func (h *QRHandler) SaveQRToFile(code, path string) error {
	if err := qrcode.WriteFile(code, qrcode.Medium, 256, path); err != nil {
		return fmt.Errorf("failed to save QR code: %w", err)
	}
	h.log.Infof("QR code saved to %s", path)
	return nil
}
