// Package command decodes the chat bot's text commands and runs them against
// the engine.
package command

import (
	"strings"

	dserrors "github.com/Dominus-Proxius/Dominum-Dispenser/internal/errors"
)

// Name identifies a text command
type Name string

const (
	GetLink      Name = "!getlink"
	AddLink      Name = "!addlink"
	ReportLink   Name = "!reportlink"
	Reset        Name = "!reset"
	ResetUser    Name = "!resetuser"
	SetAdminRole Name = "!setadminrole"
	MyLinks      Name = "!mylinks"
)

// argument requirements; commands absent here take none and ignore extras
var singleArg = map[Name]string{
	AddLink:      "provide a single URL",
	ReportLink:   "provide a link ID",
	ResetUser:    "provide a user ID",
	SetAdminRole: "provide a role ID",
}

var known = map[Name]bool{
	GetLink:      true,
	AddLink:      true,
	ReportLink:   true,
	Reset:        true,
	ResetUser:    true,
	SetAdminRole: true,
	MyLinks:      true,
}

// Command is a decoded text command
type Command struct {
	Name Name
	Args []string
}

// Arg returns the first argument, or ""
func (c *Command) Arg() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Parse splits text on whitespace and validates the command name and its
// argument count.
func Parse(text string) (*Command, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, dserrors.InvalidInput("empty command")
	}

	name := Name(fields[0])
	if !known[name] {
		return nil, dserrors.InvalidInput("unknown command").WithDetail("command", fields[0])
	}

	args := fields[1:]
	if usage, ok := singleArg[name]; ok && len(args) != 1 {
		return nil, dserrors.InvalidInput(usage).WithDetail("command", string(name))
	}

	return &Command{Name: name, Args: args}, nil
}
