package control

// Verdict is the classifier's recommendation: true means run the fogger.
type Verdict bool

func (v Verdict) String() string {
	if v {
		return "1"
	}
	return "0"
}

// CommandedState is the on/off value sent to the relay.
type CommandedState bool

const (
	Off CommandedState = false
	On  CommandedState = true
)

func (s CommandedState) String() string {
	if s {
		return "ON"
	}
	return "OFF"
}

// QueryValue is the fogger parameter the board expects.
func (s CommandedState) QueryValue() string {
	if s {
		return "1"
	}
	return "0"
}

// Resolve derives the commanded state from the mode and the verdict. The
// verdict is only consulted in ModeAuto. Modes outside the enumeration
// resolve to Off.
func Resolve(mode Mode, verdict Verdict) CommandedState {
	switch mode {
	case ModeAuto:
		return CommandedState(verdict)
	case ModeForceOn:
		return On
	default:
		return Off
	}
}
