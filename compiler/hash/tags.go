package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the tree serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones
// invalidates every cached compiled unit.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// Tree node tags. Each tag uniquely identifies a node kind in the
// serialized byte stream.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Expressions
	TagConstant        byte = 0x01
	TagIdentifier      byte = 0x02
	TagThis            byte = 0x03
	TagBinaryOp        byte = 0x04
	TagUnaryOp         byte = 0x05
	TagMethodCall      byte = 0x06
	TagNewObject       byte = 0x07
	TagAttributeAccess byte = 0x08
	TagCast            byte = 0x09

	// Reserved 0x0A-0x0F

	// Statements
	TagExprStmt     byte = 0x10
	TagLocalVarDecl byte = 0x11
	TagBlock        byte = 0x12
	TagIf           byte = 0x13
	TagWhile        byte = 0x14
	TagFor          byte = 0x15
	TagReturn       byte = 0x16
	TagPrint        byte = 0x17

	// Declarations
	TagUnit      byte = 0x20
	TagInterface byte = 0x21
	TagClass     byte = 0x22
	TagAttribute byte = 0x23
	TagMethod    byte = 0x24
	TagParam     byte = 0x25
	TagTypeParam byte = 0x26
	TagTypeRef   byte = 0x27

	// Absent optional child
	TagNone byte = 0x30

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagConstant, TagIdentifier, TagThis, TagBinaryOp, TagUnaryOp,
	TagMethodCall, TagNewObject, TagAttributeAccess, TagCast,
	TagExprStmt, TagLocalVarDecl, TagBlock, TagIf, TagWhile, TagFor,
	TagReturn, TagPrint,
	TagUnit, TagInterface, TagClass, TagAttribute, TagMethod, TagParam,
	TagTypeParam, TagTypeRef,
	TagNone,
}
