// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package buildvars contains variables injected at build time.
package buildvars

import (
	"runtime/debug"
)

// Set at link time, e.g.
// -ldflags "-X github.com/toeirei/circuitdiag/buildvars.Version=1.2.3".
// They are empty for local builds.
var (
	Version string
	Commit  string
	Date    string
)

const modulePath = "github.com/toeirei/circuitdiag"

// Resolve returns the best-available version, commit and build date. Linker
// values win; otherwise info (or the running binary's build info when nil) is
// consulted. The version falls back to "dev".
func Resolve(info *debug.BuildInfo) (version, commit, date string) {
	version, commit, date = Version, Commit, Date
	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info != nil {
		if version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		if version == "" {
			for _, dep := range info.Deps {
				if dep.Path == modulePath && dep.Version != "" {
					version = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if date == "" {
					date = s.Value
				}
			}
		}
	}
	if version == "" {
		version = "dev"
	}
	return version, commit, date
}

// Describe renders Resolve(nil) as "version (commit) built: date", omitting
// unknown parts.
func Describe() string {
	return describe(Resolve(nil))
}

func describe(version, commit, date string) string {
	out := version
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		out += " (" + commit + ")"
	}
	if date != "" {
		out += " built: " + date
	}
	return out
}
