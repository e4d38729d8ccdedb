package models

// OperationKind names a requested browser operation, used by the
// selector to bias the control-mode ranking.
type OperationKind string

const (
	OpNavigate OperationKind = "navigate"
	OpSearch   OperationKind = "search"
	OpRead     OperationKind = "read"
	OpExtract  OperationKind = "extract"
	OpClick    OperationKind = "click"
	OpScroll   OperationKind = "scroll"
	OpType     OperationKind = "type"
)

// IsProtocolFavored reports whether the operation is read/navigation-like
// and works best over the remote debugging protocol.
func (o OperationKind) IsProtocolFavored() bool {
	switch o {
	case OpNavigate, OpSearch, OpRead, OpExtract:
		return true
	}
	return false
}

// IsInputFavored reports whether the operation is a physical interaction
// that works best through synthetic input injection.
func (o OperationKind) IsInputFavored() bool {
	switch o {
	case OpClick, OpScroll, OpType:
		return true
	}
	return false
}
