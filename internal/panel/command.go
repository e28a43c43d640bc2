package panel

import (
	"fmt"
	"strings"
)

// Command is a control surface button.
type Command int

const (
	CmdUndo Command = iota + 1
	CmdReset
	CmdNewRoom
	CmdJoinRoom

	cmdEnd
)

var labels = [cmdEnd]string{
	CmdUndo:     "Undo",
	CmdReset:    "Reset",
	CmdNewRoom:  "New Room",
	CmdJoinRoom: "Join Room",
}

func (c Command) String() string {
	if c < CmdUndo || c >= cmdEnd {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return labels[c]
}

// Commands lists every button in panel order.
func Commands() []Command {
	out := make([]Command, 0, int(cmdEnd)-1)
	for c := CmdUndo; c < cmdEnd; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCommand maps a button label to its command. Case and inner spacing are
// ignored, so "join room", "JoinRoom" and " Join  Room " all match.
func ParseCommand(label string) (Command, error) {
	key := strings.ToLower(strings.Join(strings.Fields(label), ""))
	for c := CmdUndo; c < cmdEnd; c++ {
		if key == strings.ToLower(strings.ReplaceAll(labels[c], " ", "")) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, label)
}
