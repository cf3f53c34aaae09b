package control

import (
	"log"

	"github.com/swarmstep/swarmstep/agent"
	"github.com/swarmstep/swarmstep/internal/catalog"
)

// applyModifyAttribute commits a MODIFY_ATTRIBUTE triple against reg if
// and only if reg owns the target agent; every other master that
// receives the same broadcast finds Get missing and silently ignores
// it, per §4.7 ("owner commits it locally, others ignore").
func applyModifyAttribute(reg agent.Registry, id catalog.GlobalID, attr catalog.Attribute, value []byte) error {
	a, ok := reg.Get(id)
	if !ok {
		return nil
	}
	w, ok := a.(agent.AttributeWriter)
	if !ok {
		log.Printf("control: agent %d does not implement AttributeWriter, MODIFY_ATTRIBUTE on attr %d ignored", id, attr)
		return nil
	}
	return w.WriteAttribute(attr, value)
}
