// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package command defines the host command protocol.
//
// A Command is one of five variants. The set is closed: only types in this
// package implement Command, so a type switch over the variants is exhaustive
// and a variant's fields can only be read once the switch has selected it.
package command

import (
	"fmt"

	"github.com/hotbridge/hotbridge/internal/abi"
	"github.com/hotbridge/hotbridge/internal/native"
)

// Tag identifies a command variant on the wire.
type Tag int32

// Command tags. Values are fixed by the host protocol.
const (
	TagInitialize       Tag = 1
	TagLoadAssemblies   Tag = 2
	TagUnloadAssemblies Tag = 3
	TagFind             Tag = 4
	TagExecute          Tag = 5
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagInitialize:
		return "initialize"
	case TagLoadAssemblies:
		return "load_assemblies"
	case TagUnloadAssemblies:
		return "unload_assemblies"
	case TagFind:
		return "find"
	case TagExecute:
		return "execute"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

// Command is a host command.
type Command interface {
	Tag() Tag
	command()
}

// Initialize hands the host function table and the expected framework
// checksum to the bridge.
type Initialize struct {
	Host     *native.Table
	Checksum int32
}

// LoadAssemblies discovers and loads the plugin.
type LoadAssemblies struct{}

// UnloadAssemblies unloads the plugin and reclaims its context.
type UnloadAssemblies struct{}

// Find resolves a function name to an address. Optional lookups that miss
// are silent.
type Find struct {
	Name     string
	Optional bool
}

// Execute calls the function at an address.
type Execute struct {
	Function abi.Address
	Argument abi.Argument
}

func (Initialize) Tag() Tag       { return TagInitialize }
func (LoadAssemblies) Tag() Tag   { return TagLoadAssemblies }
func (UnloadAssemblies) Tag() Tag { return TagUnloadAssemblies }
func (Find) Tag() Tag             { return TagFind }
func (Execute) Tag() Tag          { return TagExecute }

func (Initialize) command()       {}
func (LoadAssemblies) command()   {}
func (UnloadAssemblies) command() {}
func (Find) command()             {}
func (Execute) command()          {}

// TagOf returns the tag of cmd, or 0 for a nil command.
func TagOf(cmd Command) Tag {
	if cmd == nil {
		return 0
	}
	return cmd.Tag()
}
