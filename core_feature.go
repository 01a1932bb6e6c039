package hdc

// newCoreFeature builds the mandatory FeatureID 0x00 "Core" feature: besides
// the members every feature gets, Core additionally exposes
// AvailableFeatures and a MaxReqMsgSize property mirroring the META.MAX_REQ
// query, so both paths report the same value (spec.md section 9 open
// question; SPEC_FULL.md section 4).
func newCoreFeature(r *DeviceRouter) *Feature {
	core := NewFeature(FeatureIDCore, "Core", "Mandatory core feature: introspection and lifecycle metadata.")

	core.properties[PropertyIDAvailableFeatures] = &PropertyDescriptor{
		ID: PropertyIDAvailableFeatures, Name: "AvailableFeatures", DType: DTypeBlob, ReadOnly: true,
		Doc: "UINT8 list of the FeatureIDs registered on this device.",
		Getter: func() (interface{}, error) {
			ids := r.featureIDs()
			return []byte(ids), nil
		},
	}
	core.properties[PropertyIDMaxReqMsgSize] = &PropertyDescriptor{
		ID: PropertyIDMaxReqMsgSize, Name: "MaxReqMsgSize", DType: DTypeUint32, ReadOnly: true,
		Doc:    "Maximum accepted request message size, mirrors META.MAX_REQ.",
		Getter: func() (interface{}, error) { return r.maxReqSize, nil },
	}
	return core
}
