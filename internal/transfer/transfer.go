// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// package transfer exports circuit mappings and the devices they reference as
// a JSON document, optionally zstd-compressed, and imports such documents
// back into a store. Device secrets are never exported.
package transfer // import "github.com/toeirei/circuitdiag/internal/transfer"

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/circuitdiag/internal/db"
	"github.com/toeirei/circuitdiag/internal/model"
	"go.uber.org/zap"
)

// SchemaVersion is written into every exported document.
const SchemaVersion = 1

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Document is the exported form of the mapping inventory.
type Document struct {
	SchemaVersion int             `json:"schema_version"`
	ExportedAt    time.Time       `json:"exported_at"`
	Devices       []DeviceRecord  `json:"devices"`
	Mappings      []MappingRecord `json:"mappings"`
}

// DeviceRecord identifies a device by name, address and port. Ref is local to
// the document and links mappings to devices.
type DeviceRecord struct {
	Ref      int    `json:"ref"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	KeyPath  string `json:"key_path,omitempty"`
}

// MappingRecord is a mapping whose device is given by DeviceRef.
type MappingRecord struct {
	CircuitID   string         `json:"circuit_id"`
	DeviceRef   int            `json:"device_ref"`
	Command     string         `json:"command"`
	Description string         `json:"description,omitempty"`
	Contact     *model.Contact `json:"contact,omitempty"`
}

// Source is the read side of the store used by Export.
type Source interface {
	ListDevices(ctx context.Context) ([]model.Device, error)
	ListMappings(ctx context.Context) ([]model.CommandMapping, error)
}

// Export builds a Document from st. A non-empty query keeps only the mappings
// matching every search token; devices without a kept mapping are left out.
func Export(ctx context.Context, st Source, query string) (*Document, error) {
	devices, err := st.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	mappings, err := st.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}

	byID := make(map[int]model.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}
	mappings = db.FilterMappings(mappings, byID, db.TokenizeSearchQuery(query))

	doc := &Document{
		SchemaVersion: SchemaVersion,
		ExportedAt:    time.Now().UTC(),
		Devices:       []DeviceRecord{},
		Mappings:      make([]MappingRecord, 0, len(mappings)),
	}
	refs := map[int]int{}
	for _, m := range mappings {
		d, ok := byID[m.DeviceID]
		if !ok {
			// Dangling mappings cannot be re-created on import.
			continue
		}
		ref, seen := refs[d.ID]
		if !seen {
			ref = len(doc.Devices) + 1
			refs[d.ID] = ref
			doc.Devices = append(doc.Devices, DeviceRecord{
				Ref:      ref,
				Name:     d.Name,
				Address:  d.Address,
				Port:     d.Port,
				Username: d.Username,
				KeyPath:  d.KeyPath,
			})
		}
		rec := MappingRecord{
			CircuitID:   m.CircuitID,
			DeviceRef:   ref,
			Command:     m.Command,
			Description: m.Description,
		}
		if !m.Contact.IsEmpty() {
			ct := m.Contact
			rec.Contact = &ct
		}
		doc.Mappings = append(doc.Mappings, rec)
	}
	return doc, nil
}

// Write encodes doc as indented JSON, zstd-compressed when compress is set.
func Write(w io.Writer, doc *Document, compress bool) error {
	if !compress {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode export: %w", err)
		}
		return nil
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush zstd writer: %w", err)
	}
	return nil
}

// Read decodes a document written by Write. Compression is detected from the
// stream.
func Read(r io.Reader) (*Document, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, _ := br.Peek(len(zstdMagic)); bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var doc Document
	if err := json.NewDecoder(src).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	if doc.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("export schema version %d is newer than supported version %d", doc.SchemaVersion, SchemaVersion)
	}
	return &doc, nil
}

// WriteFile writes doc to path, compressing when path ends in ".zst".
func WriteFile(path string, doc *Document) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return Write(f, doc, strings.HasSuffix(path, ".zst"))
}

// ReadFile reads a document from path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Stats counts what an import did.
type Stats struct {
	DevicesCreated  int
	DevicesReused   int
	MappingsCreated int
	MappingsSkipped int
}

// Import adds the document's devices and mappings to st. Devices are matched
// on name, address and port; mappings already present for the same circuit,
// device and command are skipped, so importing twice changes nothing.
// Created devices carry no secret.
func Import(ctx context.Context, st db.Writer, doc *Document, log *zap.Logger) (Stats, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("transfer")

	var stats Stats
	ids := make(map[int]int, len(doc.Devices))
	for _, rec := range doc.Devices {
		if rec.Address == "" {
			return stats, fmt.Errorf("device ref %d has no address", rec.Ref)
		}
		port := rec.Port
		if port <= 0 {
			port = model.DefaultSSHPort
		}
		existing, err := st.FindDevice(ctx, rec.Name, rec.Address, port)
		if err != nil {
			return stats, fmt.Errorf("looking up device %s: %w", rec.Name, err)
		}
		if existing != nil {
			ids[rec.Ref] = existing.ID
			stats.DevicesReused++
			continue
		}
		id, err := st.AddDevice(ctx, &model.Device{
			Name:     rec.Name,
			Address:  rec.Address,
			Port:     port,
			Username: rec.Username,
			KeyPath:  rec.KeyPath,
		})
		if err != nil {
			return stats, err
		}
		ids[rec.Ref] = id
		stats.DevicesCreated++
		log.Debug("imported device", zap.String("name", rec.Name), zap.Int("id", id))
	}

	for _, rec := range doc.Mappings {
		deviceID, ok := ids[rec.DeviceRef]
		if !ok {
			return stats, fmt.Errorf("mapping for circuit %s references unknown device ref %d", rec.CircuitID, rec.DeviceRef)
		}
		exists, err := st.HasMapping(ctx, rec.CircuitID, deviceID, rec.Command)
		if err != nil {
			return stats, fmt.Errorf("checking mapping for circuit %s: %w", rec.CircuitID, err)
		}
		if exists {
			stats.MappingsSkipped++
			continue
		}
		m := &model.CommandMapping{
			CircuitID:   rec.CircuitID,
			DeviceID:    deviceID,
			Command:     rec.Command,
			Description: rec.Description,
		}
		if rec.Contact != nil {
			m.Contact = *rec.Contact
		}
		if _, err := st.AddMapping(ctx, m); err != nil {
			return stats, err
		}
		stats.MappingsCreated++
	}
	log.Info("import finished",
		zap.Int("devices_created", stats.DevicesCreated),
		zap.Int("devices_reused", stats.DevicesReused),
		zap.Int("mappings_created", stats.MappingsCreated),
		zap.Int("mappings_skipped", stats.MappingsSkipped))
	return stats, nil
}
