package protocol

import (
	"fmt"

	"github.com/beevik/etree"
)

// Response is a controller-to-client message.
type Response struct {
	Type Kind
	root Node
}

// ParseResponse reads the discriminator of a response document.
// The type is whitespace-normalized and upper-cased.
func ParseResponse(doc *etree.Document) (*Response, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrUnexpectedType)
	}
	node := NodeOf(root)
	raw, err := node.String(elemResponseType)
	if err != nil {
		return nil, err
	}
	return &Response{Type: normalizeKind(raw), root: node}, nil
}

// Is reports whether the response has the given kind.
func (r *Response) Is(kind Kind) bool {
	return r.Type == kind
}

// Root returns the response root element.
func (r *Response) Root() Node {
	return r.root
}

// Circuit is one computed collection route.
type Circuit struct {
	ContainerSets []ContainerSet
}

// ContainerSet is a group of containers collected together.
type ContainerSet struct {
	ContainerIDs []int
}

// ParseCircuits walks circuits/circuit/container_sets/container_set/containers/container/id.
// Empty collections are valid; a container without an integer id is not.
func ParseCircuits(r *Response) ([]Circuit, error) {
	if !r.Is(KindReqCircuits) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, r.Type, KindReqCircuits)
	}
	circuitsNode, ok := r.root.Child(elemCircuits)
	if !ok {
		return nil, fmt.Errorf("%w: <%s>", ErrMissingField, elemCircuits)
	}

	var circuits []Circuit
	for ci, circuitNode := range circuitsNode.Children(elemCircuit) {
		var circuit Circuit
		setsNode, _ := circuitNode.Child(elemContainerSets)
		for si, setNode := range setsNode.Children(elemContainerSet) {
			var set ContainerSet
			containersNode, _ := setNode.Child(elemContainers)
			for _, c := range containersNode.Children(elemContainer) {
				id, err := c.Int(elemID)
				if err != nil {
					return nil, fmt.Errorf("circuit %d, container set %d: %w", ci, si, err)
				}
				set.ContainerIDs = append(set.ContainerIDs, id)
			}
			circuit.ContainerSets = append(circuit.ContainerSets, set)
		}
		circuits = append(circuits, circuit)
	}
	return circuits, nil
}

// ScheduledContainers lists every container id referenced by circuits,
// without duplicates, in first-seen order.
func ScheduledContainers(circuits []Circuit) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, circuit := range circuits {
		for _, set := range circuit.ContainerSets {
			for _, id := range set.ContainerIDs {
				if seen[id] {
					continue
				}
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// NewResponse builds a response document carrying only a discriminator.
func NewResponse(kind Kind) *etree.Document {
	doc, _ := newResponseDocument(kind)
	return doc
}

// NewCircuitsResponse builds a REQ_CIRCUITS response.
// circuits[i][j] lists the container ids of container set j in circuit i.
func NewCircuitsResponse(circuits [][][]int) *etree.Document {
	doc, root := newResponseDocument(KindReqCircuits)
	circuitsEl := root.CreateElement(elemCircuits)
	for _, sets := range circuits {
		setsEl := circuitsEl.CreateElement(elemCircuit).CreateElement(elemContainerSets)
		for _, ids := range sets {
			containersEl := setsEl.CreateElement(elemContainerSet).CreateElement(elemContainers)
			for _, id := range ids {
				setInt(containersEl.CreateElement(elemContainer), elemID, id)
			}
		}
	}
	return doc
}

func newResponseDocument(kind Kind) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	root := doc.CreateElement(elemResponse)
	root.CreateElement(elemResponseType).SetText(string(kind))
	return doc, root
}
