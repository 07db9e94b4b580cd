package remote

import (
	"regexp"
	"time"
)

// WebDAV multistatus document, as returned by PROPFIND. Tags carry no
// namespace so both namespaced and bare server responses decode.
type multiStatus struct {
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string     `xml:"href"`
	Propstats []propStat `xml:"propstat"`
}

type propStat struct {
	Status string  `xml:"status"`
	Prop   davProp `xml:"prop"`
}

type davProp struct {
	DisplayName  string       `xml:"displayname"`
	ResourceType resourceType `xml:"resourcetype"`
	Length       int64        `xml:"getcontentlength"`
	Modified     string       `xml:"getlastmodified"`
}

type resourceType struct {
	Collection *struct{} `xml:"collection"`
}

func (p davProp) isDir() bool {
	return p.ResourceType.Collection != nil
}

var statusLineRe = regexp.MustCompile(`^HTTP/[0-9.]+\s+(2\d\d)`)

// okProp returns the prop block whose propstat reports a 2xx status.
func (r davResponse) okProp() (davProp, bool) {
	for _, ps := range r.Propstats {
		if statusLineRe.MatchString(ps.Status) {
			return ps.Prop, true
		}
	}
	return davProp{}, false
}

// getlastmodified formats seen in the wild, most common first.
var davTimeFormats = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC3339,
	time.UnixDate,
}

// parseDavTime parses a getlastmodified value, returning the zero time
// when no known layout matches.
func parseDavTime(s string) time.Time {
	for _, layout := range davTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
  <D:prop>
    <D:displayname/>
    <D:resourcetype/>
    <D:getcontentlength/>
    <D:getlastmodified/>
  </D:prop>
</D:propfind>`
