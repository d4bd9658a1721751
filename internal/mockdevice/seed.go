// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package mockdevice

import (
	"context"
	"fmt"

	"github.com/toeirei/circuitdiag/internal/db"
	"github.com/toeirei/circuitdiag/internal/model"
	"github.com/toeirei/circuitdiag/internal/security"
)

// SeedDeviceName names the inventory record pointing at the mock device.
const SeedDeviceName = "ACORN Test Router"

// SeedCircuits are the demo mappings created by Seed.
var SeedCircuits = []model.CommandMapping{
	{
		CircuitID:   "TEST-001",
		Command:     "show circuit id TEST-001",
		Description: "Test Circuit for ACORN Demo",
		Contact:     model.Contact{Name: "John Demo", Email: "john.demo@example.com", Phone: "555-123-4567"},
	},
	{
		CircuitID:   "TEST-002",
		Command:     "show circuit id TEST-002",
		Description: "Another Test Circuit for ACORN Demo",
		Contact:     model.Contact{Name: "Jane Test", Email: "jane.test@example.com", Phone: "555-987-6543"},
	},
	{
		CircuitID:   "TEST-MULTI",
		Command:     "show version; show interface ge-0/0/0",
		Description: "Multi-command Test Circuit",
		Contact:     model.Contact{Name: "Alex Multi", Email: "alex.multi@example.com", Phone: "555-555-5555"},
	},
}

// SeedResult reports what Seed wrote.
type SeedResult struct {
	Device  model.Device
	Created []string // circuit IDs added by this call
}

// Seed records a mock device at address:port with the default login and adds
// the demo circuits to it. Existing records are reused, so seeding twice
// adds nothing.
func Seed(ctx context.Context, st db.Writer, address string, port int) (SeedResult, error) {
	var res SeedResult
	dev, err := st.FindDevice(ctx, SeedDeviceName, address, port)
	if err != nil {
		return res, fmt.Errorf("looking up seed device: %w", err)
	}
	if dev == nil {
		dev = &model.Device{
			Name:     SeedDeviceName,
			Address:  address,
			Port:     port,
			Username: DefaultUsername,
			Secret:   security.FromString(DefaultPassword),
		}
		if _, err := st.AddDevice(ctx, dev); err != nil {
			return res, err
		}
	}
	res.Device = *dev

	for _, tmpl := range SeedCircuits {
		exists, err := st.HasMapping(ctx, tmpl.CircuitID, dev.ID, tmpl.Command)
		if err != nil {
			return res, err
		}
		if exists {
			continue
		}
		m := tmpl
		m.DeviceID = dev.ID
		if _, err := st.AddMapping(ctx, &m); err != nil {
			return res, err
		}
		res.Created = append(res.Created, m.CircuitID)
	}
	return res, nil
}
