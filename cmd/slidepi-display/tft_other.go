//go:build !linux

package main

import "errors"

// TFT is only available on Linux.
type TFT struct{}

func NewTFT() (*TFT, error) {
	return nil, errors.New("TFT panel requires linux")
}

func (t *TFT) Render(*Status) error { return nil }

func (t *TFT) Close() error { return nil }
