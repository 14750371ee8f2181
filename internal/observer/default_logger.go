package observer

import (
	"log"

	"github.com/danshapiro/bhtree/internal/bhtype"
	"github.com/danshapiro/bhtree/internal/btnode"
)

// NewDefaultLogger wires a StatusChangeLogger to the standard log package,
// the ambient logging idiom this module carries from its teacher (no
// structured logging library anywhere in the corpus).
func NewDefaultLogger(root btnode.Node) *StatusChangeLogger {
	return NewStatusChangeLogger(root, func(ts bhtype.Timestamp, n btnode.Node, prev, cur bhtype.Status) {
		log.Printf("bhtree: %s: %s -> %s (seq=%d t=%s)", n.FullPath(), prev, cur, ts.SequenceID, ts.Time)
	})
}
