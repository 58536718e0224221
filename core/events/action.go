package events

const (
	KindOSCommand        Kind = "action.os.command"
	KindSmartHomeCommand Kind = "action.smarthome.command"
)

const (
	KeyCommand = "command"
	KeyDevice  = "device"
	KeyAction  = "action"
)

// NewOSCommand creates an OS command request. Payload: "command" (string).
func NewOSCommand(command string) Event {
	return New(KindOSCommand, Payload{KeyCommand: command})
}

// NewSmartHomeCommand creates a smart home request. Payload: "device" and
// "action" (both string).
func NewSmartHomeCommand(device, action string) Event {
	return New(KindSmartHomeCommand, Payload{KeyDevice: device, KeyAction: action})
}
