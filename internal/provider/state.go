package provider

import "fmt"

// State состояние жизненного цикла сессии.
type State int

const (
	Idle State = iota
	Initializing
	Ready
	SendingText
	SendingImage
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case SendingText:
		return "sending-text"
	case SendingImage:
		return "sending-image"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) sending() bool { return s == SendingText || s == SendingImage }
