// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metadata // import "go.opentelemetry.io/clrprofiler/metadata"

// ElementType is a CorElementType from ECMA-335 II.23.1.16.
type ElementType uint8

const (
	ElementTypeEnd         ElementType = 0x00
	ElementTypeVoid        ElementType = 0x01
	ElementTypeBoolean     ElementType = 0x02
	ElementTypeChar        ElementType = 0x03
	ElementTypeI1          ElementType = 0x04
	ElementTypeU1          ElementType = 0x05
	ElementTypeI2          ElementType = 0x06
	ElementTypeU2          ElementType = 0x07
	ElementTypeI4          ElementType = 0x08
	ElementTypeU4          ElementType = 0x09
	ElementTypeI8          ElementType = 0x0a
	ElementTypeU8          ElementType = 0x0b
	ElementTypeR4          ElementType = 0x0c
	ElementTypeR8          ElementType = 0x0d
	ElementTypeString      ElementType = 0x0e
	ElementTypePtr         ElementType = 0x0f
	ElementTypeByRef       ElementType = 0x10
	ElementTypeValueType   ElementType = 0x11
	ElementTypeClass       ElementType = 0x12
	ElementTypeVar         ElementType = 0x13
	ElementTypeArray       ElementType = 0x14
	ElementTypeGenericInst ElementType = 0x15
	ElementTypeTypedByRef  ElementType = 0x16
	ElementTypeI           ElementType = 0x18
	ElementTypeU           ElementType = 0x19
	ElementTypeFnPtr       ElementType = 0x1b
	ElementTypeObject      ElementType = 0x1c
	ElementTypeSzArray     ElementType = 0x1d
	ElementTypeMVar        ElementType = 0x1e
	ElementTypeCModReqd    ElementType = 0x1f
	ElementTypeCModOpt     ElementType = 0x20
	ElementTypeInternal    ElementType = 0x21
	ElementTypeSentinel    ElementType = 0x41
	ElementTypePinned      ElementType = 0x45
)

// primitiveNames maps the element types with a fixed System type.
var primitiveNames = map[ElementType]string{
	ElementTypeVoid:       "System.Void",
	ElementTypeBoolean:    "System.Boolean",
	ElementTypeChar:       "System.Char",
	ElementTypeI1:         "System.SByte",
	ElementTypeU1:         "System.Byte",
	ElementTypeI2:         "System.Int16",
	ElementTypeU2:         "System.UInt16",
	ElementTypeI4:         "System.Int32",
	ElementTypeU4:         "System.UInt32",
	ElementTypeI8:         "System.Int64",
	ElementTypeU8:         "System.UInt64",
	ElementTypeR4:         "System.Single",
	ElementTypeR8:         "System.Double",
	ElementTypeString:     "System.String",
	ElementTypeObject:     "System.Object",
	ElementTypeI:          "System.IntPtr",
	ElementTypeU:          "System.UIntPtr",
	ElementTypeTypedByRef: "System.TypedReference",
}

// PrimitiveElementType returns the element type of a primitive System type name.
func PrimitiveElementType(name string) (ElementType, bool) {
	for et, n := range primitiveNames {
		if n == name {
			return et, true
		}
	}
	return ElementTypeEnd, false
}

// CallingConvention is the first byte of a method signature (ECMA-335 II.23.2.1).
type CallingConvention uint8

const (
	CallConvDefault      CallingConvention = 0x00
	CallConvVarArg       CallingConvention = 0x05
	CallConvGeneric      CallingConvention = 0x10
	CallConvHasThis      CallingConvention = 0x20
	CallConvExplicitThis CallingConvention = 0x40

	callConvKindMask CallingConvention = 0x0f
)
