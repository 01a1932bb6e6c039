package hdc

import "fmt"

// ExceptionDescriptor catalogs one exception a command may raise: an ID, a
// non-empty name, and optional documentation. Used both as a catalog entry
// on a CommandDescriptor and, at the wire level, as the carrier of an actual
// failure reply.
type ExceptionDescriptor struct {
	ID   ExceptionID
	Name string
	Doc  string
}

func (e ExceptionDescriptor) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("hdc: exception 0x%02x: name must not be empty", byte(e.ID))
	}
	return nil
}

// PropertyDescriptor is a single, generically-typed descriptor for a named
// piece of feature state, replacing the source's per-dtype x RO/RW class
// hierarchy (DESIGN.md / spec.md section 9). Getter is
// mandatory; Setter is nil for read-only properties.
type PropertyDescriptor struct {
	ID       PropertyID
	Name     string
	DType    DType
	ReadOnly bool
	Doc      string

	Getter func() (interface{}, error)
	Setter func(interface{}) error
}

func (p *PropertyDescriptor) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("hdc: property 0x%02x: name must not be empty", byte(p.ID))
	}
	if !p.DType.IsDefined() {
		return fmt.Errorf("hdc: property %q: dtype 0x%02x is not defined", p.Name, byte(p.DType))
	}
	if p.Getter == nil {
		return fmt.Errorf("hdc: property %q: Getter must not be nil", p.Name)
	}
	if !p.ReadOnly && p.Setter == nil {
		return fmt.Errorf("hdc: property %q: not read-only but Setter is nil", p.Name)
	}
	return nil
}

// CommandHandler is the user callable behind a command. It receives already
// type-checked arguments (per ArgTypes) and returns return values (matching
// RetTypes) or an error. Returning an *HdcCmdException signals a specific,
// catalogued application failure; any other error is wrapped as
// CommandFailed by the device router.
type CommandHandler func(args []interface{}) ([]interface{}, error)

// CommandDescriptor describes one RPC exposed by a feature.
type CommandDescriptor struct {
	ID         CommandID
	Name       string
	Doc        string
	ArgTypes   []DType
	ArgNames   []string
	RetTypes   []DType
	RetNames   []string
	Exceptions []ExceptionDescriptor
	Handler    CommandHandler
}

func (c *CommandDescriptor) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("hdc: command 0x%02x: name must not be empty", byte(c.ID))
	}
	if c.Handler == nil {
		return fmt.Errorf("hdc: command %q: Handler must not be nil", c.Name)
	}
	if err := ValidatePlacement(c.ArgTypes); err != nil {
		return fmt.Errorf("hdc: command %q: args: %w", c.Name, err)
	}
	if err := ValidatePlacement(c.RetTypes); err != nil {
		return fmt.Errorf("hdc: command %q: returns: %w", c.Name, err)
	}
	seen := map[ExceptionID]bool{}
	for _, e := range c.Exceptions {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("hdc: command %q: %w", c.Name, err)
		}
		if seen[e.ID] {
			return fmt.Errorf("hdc: command %q: duplicate exception id 0x%02x", c.Name, byte(e.ID))
		}
		seen[e.ID] = true
	}
	return nil
}

// declaresException reports whether id appears in the command's catalogued
// Exceptions list. Used only to emit the non-fatal sanity-check warning
// spec.md section 4.4 calls for ("a warning, not an error").
func (c *CommandDescriptor) declaresException(id ExceptionID) bool {
	for _, e := range c.Exceptions {
		if e.ID == id {
			return true
		}
	}
	return false
}

// EventDescriptor describes one outbound, device-to-host notification.
type EventDescriptor struct {
	ID       EventID
	Name     string
	Doc      string
	ArgTypes []DType
	ArgNames []string
}

func (e *EventDescriptor) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("hdc: event 0x%02x: name must not be empty", byte(e.ID))
	}
	return ValidatePlacement(e.ArgTypes)
}

// Feature is a logical, ID-addressed grouping of commands, events and
// properties, owned by a DeviceRouter. Every Feature gets the mandatory
// LogEventThreshold/FeatureState properties and Log/FeatureStateTransition
// events for free when registered (SPEC_FULL.md section 4); the Core
// feature additionally gets AvailableFeatures and MaxReqMsgSize.
type Feature struct {
	ID   FeatureID
	Name string
	Doc  string

	commands   map[CommandID]*CommandDescriptor
	events     map[EventID]*EventDescriptor
	properties map[PropertyID]*PropertyDescriptor

	logThreshold uint8
	state        uint8

	router *DeviceRouter // set by DeviceRouter.RegisterFeature
}

// NewFeature creates an empty feature and wires in its mandatory members.
func NewFeature(id FeatureID, name, doc string) *Feature {
	f := &Feature{
		ID:           id,
		Name:         name,
		Doc:          doc,
		commands:     map[CommandID]*CommandDescriptor{},
		events:       map[EventID]*EventDescriptor{},
		properties:   map[PropertyID]*PropertyDescriptor{},
		logThreshold: uint8(LogLevelWarning),
		state:        0,
	}
	f.installMandatoryMembers()
	return f
}

func (f *Feature) installMandatoryMembers() {
	f.events[EventIDLog] = &EventDescriptor{
		ID: EventIDLog, Name: "Log",
		Doc:      "Forwards a log record to the host.",
		ArgTypes: []DType{DTypeUint8, DTypeUTF8},
		ArgNames: []string{"logLevel", "message"},
	}
	f.events[EventIDFeatureStateTransition] = &EventDescriptor{
		ID: EventIDFeatureStateTransition, Name: "FeatureStateTransition",
		Doc:      "Emitted whenever this feature's FeatureState property changes.",
		ArgTypes: []DType{DTypeUint8, DTypeUint8},
		ArgNames: []string{"previousState", "currentState"},
	}
	f.properties[PropertyIDLogEventThreshold] = &PropertyDescriptor{
		ID: PropertyIDLogEventThreshold, Name: "LogEventThreshold", DType: DTypeUint8,
		Doc:    "Log events below this level are not emitted.",
		Getter: func() (interface{}, error) { return f.logThreshold, nil },
		Setter: func(v interface{}) error {
			u, ok := v.(uint8)
			if !ok {
				return NewCmdException(ExcInvalidArgs, "LogEventThreshold expects a UINT8")
			}
			f.logThreshold = clampLogThreshold(u)
			return nil
		},
	}
	f.properties[PropertyIDFeatureState] = &PropertyDescriptor{
		ID: PropertyIDFeatureState, Name: "FeatureState", DType: DTypeUint8, ReadOnly: true,
		Doc:    "Current lifecycle state of this feature.",
		Getter: func() (interface{}, error) { return f.state, nil },
	}
	f.commands[CommandIDGetPropertyValue] = &CommandDescriptor{
		ID: CommandIDGetPropertyValue, Name: "GetPropertyValue",
		Doc:      "Returns the current value of a property on this feature.",
		ArgTypes: []DType{DTypeUint8},
		ArgNames: []string{"propertyId"},
		RetTypes: []DType{DTypeBlob},
		RetNames: []string{"value"},
		Exceptions: []ExceptionDescriptor{
			{ID: ExcUnknownProperty, Name: "UnknownProperty"},
		},
		Handler: f.handleGetPropertyValue,
	}
	f.commands[CommandIDSetPropertyValue] = &CommandDescriptor{
		ID: CommandIDSetPropertyValue, Name: "SetPropertyValue",
		Doc:      "Sets the value of a writable property on this feature.",
		ArgTypes: []DType{DTypeUint8, DTypeBlob},
		ArgNames: []string{"propertyId", "value"},
		RetTypes: []DType{DTypeBlob},
		RetNames: []string{"value"},
		Exceptions: []ExceptionDescriptor{
			{ID: ExcUnknownProperty, Name: "UnknownProperty"},
			{ID: ExcReadOnlyProperty, Name: "ReadOnlyProperty"},
		},
		Handler: f.handleSetPropertyValue,
	}
}

// handleGetPropertyValue and handleSetPropertyValue back the mandatory
// GetPropertyValue/SetPropertyValue commands. The property's value itself
// travels as an opaque BLOB whose bytes are the property dtype's own
// encoding, so GetPropertyValue/SetPropertyValue can front any dtype without
// per-dtype command variants.
func (f *Feature) handleGetPropertyValue(args []interface{}) ([]interface{}, error) {
	id := PropertyID(args[0].(uint8))
	prop, ok := f.properties[id]
	if !ok {
		return nil, NewCmdException(ExcUnknownProperty, fmt.Sprintf("no property 0x%02x on feature %q", byte(id), f.Name))
	}
	v, err := prop.Getter()
	if err != nil {
		return nil, err
	}
	b, err := Encode(prop.DType, v)
	if err != nil {
		return nil, err
	}
	return []interface{}{b}, nil
}

func (f *Feature) handleSetPropertyValue(args []interface{}) ([]interface{}, error) {
	id := PropertyID(args[0].(uint8))
	raw := args[1].([]byte)
	prop, ok := f.properties[id]
	if !ok {
		return nil, NewCmdException(ExcUnknownProperty, fmt.Sprintf("no property 0x%02x on feature %q", byte(id), f.Name))
	}
	if prop.ReadOnly {
		return nil, NewCmdException(ExcReadOnlyProperty, fmt.Sprintf("property %q is read-only", prop.Name))
	}
	v, err := Decode(prop.DType, raw)
	if err != nil {
		return nil, NewCmdException(ExcInvalidArgs, err.Error())
	}
	if err := prop.Setter(v); err != nil {
		return nil, err
	}
	nv, err := prop.Getter()
	if err != nil {
		return nil, err
	}
	b, err := Encode(prop.DType, nv)
	if err != nil {
		return nil, err
	}
	return []interface{}{b}, nil
}

// AddCommand, AddEvent and AddProperty register an application-defined
// member. IDs in the reserved range 0xF0..0xFF are rejected: those belong to
// the mandatory members installed by NewFeature.
func (f *Feature) AddCommand(c *CommandDescriptor) error {
	if IsReserved(byte(c.ID)) {
		return fmt.Errorf("hdc: command id 0x%02x is in the reserved range", byte(c.ID))
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if _, exists := f.commands[c.ID]; exists {
		return fmt.Errorf("hdc: feature %q already has a command with id 0x%02x", f.Name, byte(c.ID))
	}
	f.commands[c.ID] = c
	return nil
}

func (f *Feature) AddEvent(e *EventDescriptor) error {
	if IsReserved(byte(e.ID)) {
		return fmt.Errorf("hdc: event id 0x%02x is in the reserved range", byte(e.ID))
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if _, exists := f.events[e.ID]; exists {
		return fmt.Errorf("hdc: feature %q already has an event with id 0x%02x", f.Name, byte(e.ID))
	}
	f.events[e.ID] = e
	return nil
}

func (f *Feature) AddProperty(p *PropertyDescriptor) error {
	if IsReserved(byte(p.ID)) {
		return fmt.Errorf("hdc: property id 0x%02x is in the reserved range", byte(p.ID))
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := f.properties[p.ID]; exists {
		return fmt.Errorf("hdc: feature %q already has a property with id 0x%02x", f.Name, byte(p.ID))
	}
	f.properties[p.ID] = p
	return nil
}

// SetState transitions the feature's FeatureState property and emits
// FeatureStateTransition, per spec.md section 4.4. A no-op if newState
// equals the current state.
func (f *Feature) SetState(newState uint8) error {
	if f.state == newState {
		return nil
	}
	prev := f.state
	f.state = newState
	if f.router == nil {
		return nil
	}
	return f.router.emit(f.ID, EventIDFeatureStateTransition, []interface{}{prev, newState})
}

// Log emits a Log event if level is at or above the feature's current
// LogEventThreshold.
func (f *Feature) Log(level LogLevel, message string) error {
	if uint8(level) < f.logThreshold {
		return nil
	}
	if f.router == nil {
		return nil
	}
	return f.router.emit(f.ID, EventIDLog, []interface{}{uint8(level), message})
}

// Emit sends an application-defined event declared on this feature.
func (f *Feature) Emit(eventID EventID, args ...interface{}) error {
	ev, ok := f.events[eventID]
	if !ok {
		return fmt.Errorf("hdc: feature %q has no event 0x%02x", f.Name, byte(eventID))
	}
	if len(args) != len(ev.ArgTypes) {
		return fmt.Errorf("hdc: event %q: expected %d args, got %d", ev.Name, len(ev.ArgTypes), len(args))
	}
	if f.router == nil {
		return fmt.Errorf("hdc: feature %q is not attached to a router", f.Name)
	}
	return f.router.emit(f.ID, eventID, args)
}
