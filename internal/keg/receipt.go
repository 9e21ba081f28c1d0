// Copyright 2024 The brewer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package keg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// ReceiptFile is written into every installation prefix.
const ReceiptFile = "INSTALL_RECEIPT.json"

// Receipt records how a keg was built.
type Receipt struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	BuildID     string          `json:"build_id"`
	Options     map[string]bool `json:"options"`
	RuntimeDeps []string        `json:"runtime_dependencies,omitempty"`
	Advisories  []string        `json:"advisories,omitempty"`
	BuildTime   time.Time       `json:"build_time"`
}

// ReadReceipt reads the receipt of the keg installed at prefix.
func ReadReceipt(prefix string) (*Receipt, error) {
	data, err := os.ReadFile(filepath.Join(prefix, ReceiptFile))
	if err != nil {
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// WriteReceipt writes r into prefix.
func WriteReceipt(prefix string, r *Receipt) error {
	if err := os.MkdirAll(prefix, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(prefix, ReceiptFile), data, 0o644)
}
