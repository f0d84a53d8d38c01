package wsaa

import (
	"strconv"
	"time"

	"github.com/beevik/etree"
)

const (
	// timeLayout is the authority's timestamp format: ISO-like seconds
	// precision with an explicit numeric offset.
	timeLayout = "2006-01-02T15:04:05-07:00"

	// generationSkew is subtracted from/added to now for the request window.
	generationSkew = 10 * time.Minute
	// driftTolerance is how far past the reference clock a round-tripped
	// generation time may land before the window is widened.
	driftTolerance = 60 * time.Second
)

// buenosAires is the fixed -03:00 offset the authority expects. Computed
// arithmetically so the host timezone database never participates.
var buenosAires = time.FixedZone("-03:00", -3*60*60)

// FormatLocal renders a timestamp in the authority's -03:00 format.
func FormatLocal(t time.Time) string {
	return t.In(buenosAires).Format(timeLayout)
}

// loginWindow computes the generation/expiration pair for a login request.
// now is the host clock; reference is a second sample used to detect drift.
// If the formatted generation time parses back more than driftTolerance
// after the reference (fast host clock), the window is widened to -2x skew
// so the authority never sees a future generation time.
func loginWindow(now, reference time.Time) (generation, expiration time.Time) {
	generation = now.Add(-generationSkew)
	expiration = now.Add(generationSkew)

	if parsed, err := time.Parse(timeLayout, FormatLocal(generation)); err == nil {
		if parsed.After(reference.Add(driftTolerance)) {
			generation = now.Add(-2 * generationSkew)
		}
	}
	return generation, expiration
}

// BuildTRA builds the XML login ticket request for the target service.
// now and reference normally come from the same clock; they differ only
// when the caller detects drift against an external source.
func BuildTRA(service string, now, reference time.Time) ([]byte, error) {
	generation, expiration := loginWindow(now, reference)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("loginTicketRequest")
	root.CreateAttr("version", "1.0")

	header := root.CreateElement("header")
	header.CreateElement("uniqueId").SetText(strconv.FormatInt(now.Unix(), 10))
	header.CreateElement("generationTime").SetText(FormatLocal(generation))
	header.CreateElement("expirationTime").SetText(FormatLocal(expiration))

	root.CreateElement("service").SetText(service)

	doc.Indent(0)
	return doc.WriteToBytes()
}
