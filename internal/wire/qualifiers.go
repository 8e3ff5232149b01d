package wire

// Qualifiers for CommandNull.
const (
	QualifierIdentify     uint8 = 0
	QualifierAuthenticate uint8 = 1
	QualifierDescribe     uint8 = 2
)

// Qualifiers for CommandBasic.
const (
	QualifierRegister  uint8 = 0
	QualifierToken     uint8 = 1
	QualifierFindRoot  uint8 = 2
	QualifierBootstrap uint8 = 3
)

// Qualifiers for CommandMulticast.
const (
	QualifierPublish     uint8 = 0
	QualifierSubscribe   uint8 = 1
	QualifierUnsubscribe uint8 = 2
)

// Qualifiers for CommandNode.
const (
	QualifierGetPredecessor uint8 = 0
	QualifierSetPredecessor uint8 = 1
	QualifierGetSuccessor   uint8 = 2
	QualifierSetSuccessor   uint8 = 3
	QualifierGetFinger      uint8 = 4
	QualifierSetFinger      uint8 = 5
	QualifierGetNeighbours  uint8 = 6
	QualifierNotify         uint8 = 7
)

// Qualifiers for CommandOverlay.
const (
	QualifierFindSuccessor uint8 = 0
	QualifierPing         uint8 = 1
	QualifierMap          uint8 = 2
)

// ControllerID is the identifier reserved for the single logical
// controller peer.
const ControllerID uint64 = 0
