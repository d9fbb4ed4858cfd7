package protocol

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/binsim/binsim/sim"
)

// Request is a client-to-controller message.
type Request interface {
	Kind() Kind
	Document() *etree.Document
}

// ContainerReport carries one container's fill state.
type ContainerReport struct {
	ID        int
	Weight    int // kg
	Volume    int // L
	VolumeMax int // L
}

// NewContainerReport captures c's current state.
func NewContainerReport(c sim.Container) ContainerReport {
	return ContainerReport{
		ID:        c.ID(),
		Weight:    c.Weight(),
		Volume:    c.Volume(),
		VolumeMax: c.VolumeMax(),
	}
}

// Kind returns KindContainerReport.
func (ContainerReport) Kind() Kind { return KindContainerReport }

// Document renders the report as a <request> document.
func (r ContainerReport) Document() *etree.Document {
	doc, root := newRequestDocument(KindContainerReport)
	report := root.CreateElement(elemContainerReport)
	setInt(report, elemID, r.ID)
	setInt(report, elemWeight, r.Weight)
	setInt(report, elemVolume, r.Volume)
	setInt(report, elemVolumeMax, r.VolumeMax)
	return doc
}

// TrigCircuitComputation asks the controller to compute collection circuits.
type TrigCircuitComputation struct{}

// Kind returns KindTrigCircuitComputation.
func (TrigCircuitComputation) Kind() Kind { return KindTrigCircuitComputation }

// Document renders a <request> carrying only the discriminator.
func (TrigCircuitComputation) Document() *etree.Document {
	doc, _ := newRequestDocument(KindTrigCircuitComputation)
	return doc
}

// ReqCircuits fetches the computed circuits.
type ReqCircuits struct{}

// Kind returns KindReqCircuits.
func (ReqCircuits) Kind() Kind { return KindReqCircuits }

// Document renders a <request> carrying only the discriminator.
func (ReqCircuits) Document() *etree.Document {
	doc, _ := newRequestDocument(KindReqCircuits)
	return doc
}

func newRequestDocument(kind Kind) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	root := doc.CreateElement(elemRequest)
	root.CreateElement(elemRequestType).SetText(string(kind))
	return doc, root
}

// ParseRequest decodes a request document into its typed form.
func ParseRequest(doc *etree.Document) (Request, error) {
	root := doc.Root()
	if root == nil || root.Tag != elemRequest {
		return nil, fmt.Errorf("%w: want <%s> root", ErrUnexpectedType, elemRequest)
	}
	node := NodeOf(root)
	raw, err := node.String(elemRequestType)
	if err != nil {
		return nil, err
	}

	switch kind := normalizeKind(raw); kind {
	case KindContainerReport:
		report, ok := node.Child(elemContainerReport)
		if !ok {
			return nil, fmt.Errorf("%w: <%s>", ErrMissingField, elemContainerReport)
		}
		r, err := parseContainerReport(report)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindTrigCircuitComputation:
		return TrigCircuitComputation{}, nil
	case KindReqCircuits:
		return ReqCircuits{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

func parseContainerReport(f Fields) (ContainerReport, error) {
	var r ContainerReport
	var err error
	if r.ID, err = f.Int(elemID); err != nil {
		return r, err
	}
	if r.Weight, err = f.Int(elemWeight); err != nil {
		return r, err
	}
	if r.Volume, err = f.Int(elemVolume); err != nil {
		return r, err
	}
	if r.VolumeMax, err = f.Int(elemVolumeMax); err != nil {
		return r, err
	}
	return r, nil
}
