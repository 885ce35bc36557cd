package parser

// PartKind identifies which variant a BodyPart holds.
type PartKind int

const (
	PartText PartKind = iota
	PartHTML
	PartAttachment
	PartMultipart
)

func (k PartKind) String() string {
	switch k {
	case PartText:
		return "text"
	case PartHTML:
		return "html"
	case PartAttachment:
		return "attachment"
	case PartMultipart:
		return "multipart"
	default:
		return "unknown"
	}
}

// BodyPart is a node of the MIME tree. Text and HTML leaves carry decoded Content;
// attachments carry only metadata and their decoded Size; multiparts carry Children
// in source order.
type BodyPart struct {
	Kind        PartKind
	Headers     []HeaderField
	ContentType ContentType
	Disposition string

	Content  string
	Filename string
	Size     int

	Subtype  string
	Children []*BodyPart
}

// Walk visits p and its descendants in pre-order. Returning false from fn stops
// the walk.
func (p *BodyPart) Walk(fn func(*BodyPart) bool) bool {
	if p == nil {
		return true
	}
	if !fn(p) {
		return false
	}
	for _, c := range p.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// IsLeaf reports whether p has no children slot.
func (p *BodyPart) IsLeaf() bool {
	return p.Kind != PartMultipart
}
