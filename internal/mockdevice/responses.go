// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package mockdevice

import (
	"fmt"
	"strings"
)

// Respond returns the canned output for command and whether the command is
// recognized.
func Respond(command string) (string, bool) {
	cmd := strings.TrimSpace(command)
	switch {
	case strings.HasPrefix(cmd, "show version"):
		return showVersion, true
	case strings.HasPrefix(cmd, "show interface"):
		return showInterface, true
	case strings.HasPrefix(cmd, "show circuit id TEST-001"):
		return showCircuit001, true
	case strings.HasPrefix(cmd, "show circuit id TEST-002"):
		return showCircuit002, true
	case strings.HasPrefix(cmd, "show circuit id TEST-"):
		id := strings.TrimSpace(strings.SplitN(cmd, "TEST-", 2)[1])
		return fmt.Sprintf(showCircuitUnknown, id), true
	case strings.HasPrefix(cmd, "show run"), strings.HasPrefix(cmd, "show configuration"):
		return RunningConfig(), true
	default:
		return "Command not recognized. Try 'show version', 'show interface', 'show run', or 'show circuit id TEST-001'.\n", false
	}
}

const showVersion = `
ACORN Mock Router v1.0
Model: Virtual-1000
Serial: VM12345678
Build date: 2025-03-28
Last boot: 2025-03-27 08:00:00
Uptime: 1 day, 4 hours, 45 minutes
`

const showInterface = `
Interface ge-0/0/0, Enabled, Physical link is Up
  Description: Uplink to Provider
  MAC address: 00:00:5e:00:53:01
  MTU: 1500 bytes
  Last flapped: 2025-03-27 08:00:00
  Input rate: 5.2 Mbps (3200 pps)
  Output rate: 2.1 Mbps (1500 pps)
`

const showCircuit001 = `
Circuit ID: TEST-001
  Status: Active
  Type: Ethernet
  Customer: ACORN Test Customer
  Bandwidth: 100 Mbps
  Last checked: 2025-03-28 08:00:00
  Input errors: 0
  Output errors: 0
  Uptime: 99.998%
`

const showCircuit002 = `
Circuit ID: TEST-002
  Status: Active (Warning)
  Type: Ethernet
  Customer: ACORN Test Customer 2
  Bandwidth: 50 Mbps
  Last checked: 2025-03-28 08:00:00
  Input errors: 52
  Output errors: 12
  Uptime: 99.95%
  Notes: Intermittent errors detected
`

const showCircuitUnknown = `
Circuit ID: TEST-%s
  Status: Unknown
  Type: Ethernet
  Customer: Unknown
  Bandwidth: Unknown
  Last checked: Never
  Notes: This circuit is not fully configured
`

// RunningConfig renders the large "show run" output used to exercise
// chunked reads.
func RunningConfig() string {
	var b strings.Builder
	b.WriteString("! ACORN Mock Router Configuration\n! Generated on 2025-03-28\n!\nhostname mock-router\n!\n")
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&b, "!\ninterface GigabitEthernet0/%d\n description Test Interface %d\n ip address 10.0.%d.%d 255.255.255.0\n no shutdown\n",
			i, i, i/256, i%256)
	}
	b.WriteString("!\n! Routing Configuration\n!\n")
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&b, "ip route 192.168.%d.0 255.255.255.0 10.0.0.1\n", i)
	}
	b.WriteString("!\n! Access Control Lists\n!\n")
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&b, "ip access-list extended ACL-%d\n", i)
		for j := 1; j <= 10; j++ {
			fmt.Fprintf(&b, " permit ip host 10.1.%d.%d any\n", i, j)
		}
	}
	b.WriteString("!\n! SNMP Configuration\n!\n")
	b.WriteString("snmp-server community public RO\nsnmp-server community private RW\n")
	b.WriteString("snmp-server location ACORN Test Lab\nsnmp-server contact admin@acorn.example.com\n")
	b.WriteString("!\n! Circuit Configuration\n!\n")
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&b, "circuit TEST-%03d\n description Customer Circuit %d\n bandwidth 100M\n interface GigabitEthernet0/%d\n service-level gold\n",
			i, i, i)
	}
	b.WriteString("!\n! End of configuration\n")
	return b.String()
}
