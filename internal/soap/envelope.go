package soap

import (
	"strings"

	"github.com/beevik/etree"
)

// Fault is the structural error a SOAP service returns inside its envelope.
type Fault struct {
	Code   string
	Reason string
}

// ParseDocument parses a response body into an etree document.
func ParseDocument(body []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, err
	}
	return doc, nil
}

// ExtractFault finds a Fault element anywhere in the response, ignoring
// namespace prefixes (soap:Fault, soapenv:Fault, bare Fault). Returns nil
// when the response carries no fault.
func ExtractFault(body []byte) *Fault {
	doc, err := ParseDocument(body)
	if err != nil || doc.Root() == nil {
		return nil
	}

	faultElem := FindLocal(doc.Root(), "Fault")
	if faultElem == nil {
		return nil
	}

	fault := &Fault{}
	if code := FindLocal(faultElem, "faultcode"); code != nil {
		fault.Code = strings.TrimSpace(code.Text())
	}
	if reason := FindLocal(faultElem, "faultstring"); reason != nil {
		fault.Reason = strings.TrimSpace(reason.Text())
	}
	return fault
}

// FindLocal searches the subtree for the first element whose local name
// matches, ignoring any namespace prefix.
func FindLocal(elem *etree.Element, localName string) *etree.Element {
	if localNameOf(elem) == localName {
		return elem
	}
	for _, child := range elem.ChildElements() {
		if found := FindLocal(child, localName); found != nil {
			return found
		}
	}
	return nil
}

// FindLocalAll collects every element in the subtree with the local name.
func FindLocalAll(elem *etree.Element, localName string) []*etree.Element {
	var found []*etree.Element
	if localNameOf(elem) == localName {
		found = append(found, elem)
	}
	for _, child := range elem.ChildElements() {
		found = append(found, FindLocalAll(child, localName)...)
	}
	return found
}

// Text returns the trimmed text of the first matching descendant, or "".
func Text(elem *etree.Element, localName string) string {
	if found := FindLocal(elem, localName); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}

func localNameOf(elem *etree.Element) string {
	tag := elem.Tag
	if idx := strings.IndexByte(tag, ':'); idx >= 0 {
		tag = tag[idx+1:]
	}
	return tag
}
