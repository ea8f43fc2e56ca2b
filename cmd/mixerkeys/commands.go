package main

import "fmt"

// Command represents an outbound side effect requested by a mirror mutation.
// The dispatch loop is the only place commands are executed.
type Command interface {
	commandMarker()
	String() string
}

// CmdSetValue requests setting a control's value on the mixer service.
type CmdSetValue struct {
	Addr  int
	Value int
}

func (CmdSetValue) commandMarker() {}
func (c CmdSetValue) String() string {
	return fmt.Sprintf("CmdSetValue(addr=%d, value=%d)", c.Addr, c.Value)
}
