package hdc

// FeatureID, CommandID, EventID, PropertyID, ExceptionID and MetaID are all
// UINT8 namespaces. Within each namespace 0xF0..0xFF is reserved for
// protocol-mandated members; 0x00..0xEF is free for application use.
type (
	FeatureID   uint8
	CommandID   uint8
	EventID     uint8
	PropertyID  uint8
	ExceptionID uint8
	MetaID      uint8
)

// ReservedRangeStart is the first ID in every namespace's reserved range.
const ReservedRangeStart = 0xF0

// IsReserved reports whether id falls in a namespace's protocol-reserved
// range (0xF0..0xFF).
func IsReserved(id uint8) bool { return id >= ReservedRangeStart }

// MessageTypeID is byte 0 of every HDC message.
type MessageTypeID uint8

// Reserved message types, spec.md section 3.
const (
	MsgTypeMeta    MessageTypeID = 0xF0
	MsgTypeEcho    MessageTypeID = 0xF1
	MsgTypeCommand MessageTypeID = 0xF2
	MsgTypeEvent   MessageTypeID = 0xF3
)

// IsCustom reports whether a message type ID is in the custom/tunnel range
// 0x00..0xEF, i.e. it bypasses the request/reply gate entirely.
func (m MessageTypeID) IsCustom() bool { return uint8(m) < ReservedRangeStart }

func (m MessageTypeID) String() string {
	switch m {
	case MsgTypeMeta:
		return "META"
	case MsgTypeEcho:
		return "ECHO"
	case MsgTypeCommand:
		return "COMMAND"
	case MsgTypeEvent:
		return "EVENT"
	default:
		if m.IsCustom() {
			return "CUSTOM"
		}
		return "RESERVED"
	}
}

// Meta introspection subtypes, spec.md section 3.
const (
	MetaHdcVersion MetaID = 0xF0
	MetaMaxReq     MetaID = 0xF1
	MetaIdlJSON    MetaID = 0xF2
)

// Reserved exception IDs, spec.md section 3 / section 9 open question: this
// implementation standardizes on the newest ExcID table (CommandFailed =
// 0xF0), not the source's older ReplyErrorCode/CommandErrorCode variants.
const (
	ExcCommandFailed    ExceptionID = 0xF0
	ExcUnknownFeature   ExceptionID = 0xF1
	ExcUnknownCommand   ExceptionID = 0xF2
	ExcInvalidArgs      ExceptionID = 0xF3
	ExcNotNow           ExceptionID = 0xF4
	ExcUnknownProperty  ExceptionID = 0xF5
	ExcReadOnlyProperty ExceptionID = 0xF6

	// ExcUnknownEvent has no numeric home in spec.md's reserved table; it
	// is referenced only in the error taxonomy (section 7). Assigned the
	// last free slot below the canonically-named block. See DESIGN.md.
	ExcUnknownEvent ExceptionID = 0xEF
)

var reservedExceptionNames = map[ExceptionID]string{
	ExcCommandFailed:    "CommandFailed",
	ExcUnknownFeature:   "UnknownFeature",
	ExcUnknownCommand:   "UnknownCommand",
	ExcInvalidArgs:      "InvalidArgs",
	ExcNotNow:           "NotNow",
	ExcUnknownProperty:  "UnknownProperty",
	ExcReadOnlyProperty: "ReadOnlyProperty",
	ExcUnknownEvent:     "UnknownEvent",
}

// Name returns the canonical name of a reserved exception ID, or "" if id is
// not one of the protocol-mandated exceptions.
func (id ExceptionID) Name() string { return reservedExceptionNames[id] }

// Mandatory feature members, spec.md section 3 / SPEC_FULL.md section 4.
const (
	// FeatureIDCore is the ID of the mandatory Core feature every device
	// router exposes.
	FeatureIDCore FeatureID = 0x00

	// CommandIDGetPropertyValue and CommandIDSetPropertyValue are the
	// mandatory property accessor commands every feature gets for free.
	CommandIDGetPropertyValue CommandID = 0xF0
	CommandIDSetPropertyValue CommandID = 0xF1

	// EventIDLog and EventIDFeatureStateTransition are the mandatory
	// events every feature gets for free.
	EventIDLog                   EventID = 0xF0
	EventIDFeatureStateTransition EventID = 0xF1

	// PropertyIDLogEventThreshold and PropertyIDFeatureState are
	// mandatory per-feature properties.
	PropertyIDLogEventThreshold PropertyID = 0xF0
	PropertyIDFeatureState      PropertyID = 0xF1

	// PropertyIDAvailableFeatures and PropertyIDMaxReqMsgSize are
	// additional mandatory properties on the Core feature only.
	PropertyIDAvailableFeatures PropertyID = 0xF2
	PropertyIDMaxReqMsgSize     PropertyID = 0xF3
)
